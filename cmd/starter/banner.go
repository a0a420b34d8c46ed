package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/ZebulonRouseFrantzich/starter/internal/launcher"
)

var (
	failureTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	failureBody  = lipgloss.NewStyle().PaddingLeft(2)
)

// printFailure renders a fatal error. Stage errors name the stage the
// launcher stopped in.
func printFailure(w io.Writer, err error) {
	var se *launcher.StageError
	if errors.As(err, &se) {
		fmt.Fprintln(w, failureTitle.Render(fmt.Sprintf("FAILED at %s", se.Stage)))
		fmt.Fprintln(w, failureBody.Render(se.Err.Error()))
		return
	}
	fmt.Fprintln(w, failureTitle.Render("Error:")+" "+err.Error())
}

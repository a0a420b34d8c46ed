// Package config loads the launcher configuration from starter.lua.
//
// The file is evaluated in a sandboxed gopher-lua VM with a read-only
// platform table, so declarations can vary per OS or distribution.
//
// # Schema
//
// starter.lua assigns a single global table:
//
//	starter = {
//	  name = "my-bot",
//	  manifest = { url = "https://example.com/manifest.json" },
//	  -- or: github = { owner = "me", repo = "bot", branch = "main", prefix = "scripts" },
//	  app = { command = { "python", "scripts/main.py" }, mode = "exec" },
//	  dependencies = {
//	    "colorama",
//	    "aiohttp>=3.9",
//	    { name = "requests", min_version = "2.31.0" },
//	    platform.when(platform.is_linux, "uvloop"),
//	  },
//	  package_manager = {
//	    query = { "python", "-m", "pip", "show", "{name}" },
//	    install = { "python", "-m", "pip", "install", "--upgrade", "{spec}" },
//	    version_pattern = "(?m)^Version:\\s*(\\S+)",
//	  },
//	  sync = { workers = 4, timeout = 30, retries = 3, marker = "version.json" },
//	  self_update = false,
//	}
//
// # Sandbox
//
// The VM runs without os, io, require, load*, dofile and debug. Evaluation
// is bounded by ParseTimeout and the file by MaxConfigSize.
//
// # Lookup
//
// Load resolves the managed root from LoadOptions.Dir, $STARTER_DIR, or the
// working directory, and the file from LoadOptions.Path, $STARTER_CONFIG,
// or <root>/starter.lua.
package config

// Package config loads the .deploy descriptor and derives the desired remote
// state from it.
//
// # Descriptor
//
// The descriptor lives at the repository root. It is written as YAML by
// `deploy init`; the older JSON layout is still accepted:
//
//	server:
//	  address: 203.0.113.10
//	  user: deploy
//	project:
//	  name: api
//	  preset: java:gradle
//	  directories:
//	    source: ""
//	    build: build/libs
//	scripts:
//	  before: []
//	  after: []
//
// Optional keys are server.port (default 22), server.identity_file,
// server.strict_host_key_checking (default true) and auto_create
// (default true).
//
// Fields are validated with go-playground/validator struct tags; the preset
// must be registered in package presets.
//
// # Desired state
//
// BuildDesiredState turns a descriptor into a DesiredState: the packages
// every target needs (supervisor, git), the ~/.deploy/<project> directory
// with its bare repository (src.git) and worktree (src), and the rendered
// supervisor program config.
package config

package presets

// javaGradle runs a Gradle project through its run.sh wrapper.
type javaGradle struct{}

func (javaGradle) Name() string        { return "java:gradle" }
func (javaGradle) RunCommand() string  { return "/bin/bash run.sh" }
func (javaGradle) Environment() string { return "" }

func (p javaGradle) Verify(dir string) error {
	if err := requireAny(p.Name(), dir, "build.gradle", "build.gradle.kts", "gradlew"); err != nil {
		return err
	}
	return requireAny(p.Name(), dir, "run.sh")
}

// nodeNpm starts a Node.js project with npm start.
type nodeNpm struct{}

func (nodeNpm) Name() string        { return "node:npm" }
func (nodeNpm) RunCommand() string  { return "npm start" }
func (nodeNpm) Environment() string { return `NODE_ENV="production"` }

func (p nodeNpm) Verify(dir string) error {
	return requireAny(p.Name(), dir, "package.json")
}

// shellScript runs an arbitrary run.sh.
type shellScript struct{}

func (shellScript) Name() string        { return "shell:script" }
func (shellScript) RunCommand() string  { return "/bin/bash run.sh" }
func (shellScript) Environment() string { return "" }

func (p shellScript) Verify(dir string) error {
	return requireAny(p.Name(), dir, "run.sh")
}

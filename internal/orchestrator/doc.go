/*
Package orchestrator owns the runtime session of the dev container: it turns
a batch of project files into a running, previewable dev server.

# Lifecycle

	Uninitialized -> Initializing -> Idle -> SettingUp -> (Installing) -> Starting -> Serving
	                                             ^                                    |
	                                             +---------- re-setup / switch -------+

Any state may fall into Error; Error accepts an explicit retry of
initialize, setup, install or start. Destroy returns to Uninitialized from
anywhere.

# Reinstall rule

SetupProject reports that dependencies need installing when the manifest
hash differs from the one stored after the last successful install, when
node_modules is missing, or when the project id differs from the previous
setup call.

# Sync

Once a dev server is started every filesystem change is forwarded to the
transport from inside the filesystem's write path, so the sandbox sees
changes in the order they were applied.

# Usage

	o, err := orchestrator.New(orchestrator.Options{
		Config: cfg,
		Output: func(line string) { fmt.Println(line) },
	})
	if err != nil {
		return err
	}
	defer o.Destroy(ctx)

	needsInstall, err := o.SetupProject(ctx, files, "p1")
	if err != nil {
		return err
	}
	if needsInstall {
		if err := o.InstallDependencies(ctx, "p1"); err != nil {
			return err
		}
	}
	url, err := o.StartDevServer(ctx, "p1")
*/
package orchestrator

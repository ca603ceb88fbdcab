// Package devreload runs a command and restarts it whenever watched source
// files change.
//
// A Reloader watches directories recursively with fsnotify, ignores hidden
// entries and files whose extension is not listed, and waits for a quiet
// period before acting so that an editor saving several files causes one
// restart. A restart stops the running child (SIGTERM to its process group,
// then SIGKILL after StopTimeout), frees the configured port if something
// still holds it, and starts the command again.
//
// A child that exits on its own is not restarted until the next change.
package devreload

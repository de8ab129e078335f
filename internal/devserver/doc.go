// Package devserver serves a project out of the virtual filesystem.
//
// A Server is an http.Handler addressed by a preview port. The bridge routes
// /preview/<port>/ to it in local mode; the sandbox host does the same on the
// isolated origin. Live reload is pushed to an HMRTarget, and browsers that
// connect to /__hmr become one automatically.
package devserver

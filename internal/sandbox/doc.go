/*
Package sandbox implements the correlated message protocol spoken between the
orchestrator and an isolated sandbox origin.

The parent side wraps a Port in a Channel. Requests get a process-unique,
strictly increasing ID and wait for the reply carrying the same ID. Every
request has its own timeout; expired waiters are removed and late replies are
dropped. Inbound messages from any origin other than the expected one are
ignored.

Message types:

	ready           sandbox -> parent  sandbox is listening
	init            parent -> sandbox  filesystem snapshot (request)
	initComplete    sandbox -> parent  snapshot restored (reply)
	startDevServer  parent -> sandbox  start server on port (request)
	syncFile        parent -> sandbox  incremental write or delete (no reply)
	console         sandbox -> parent  forwarded output line
	devServerError  sandbox -> parent  failure, as a reply or unsolicited

Ports exist for gorilla/websocket connections and for in-process pipes.
*/
package sandbox

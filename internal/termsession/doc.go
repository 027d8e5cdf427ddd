// Package termsession multiplexes terminal sessions onto remote targets.
//
// A Registry opens one Session per attachment. Each Session dials its own
// Transport (a websocket to the backend's /ws/terminal/{id} endpoint),
// decodes inbound envelopes in arrival order and appends what they display
// to its OutputLog. Display surfaces (the HTTP API, the websocket stream
// and termctl) only read the log and call Send; they never see the
// transport.
//
// Output, state changes and the transport's lifetime are all scoped to a
// single session. Closing one session never touches another, and a session
// whose transport has died keeps its output until it is closed.
package termsession

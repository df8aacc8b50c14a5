// Package groupchat coordinates round-based collaboration between agents
// that share a single conversation log.
//
// A Broadcast appends the incoming message to the log and then runs up to
// MaxRounds rounds. In each round every participant except the sender sees
// a rendered window of the recent log and contributes a reply. A failing
// participant contributes its error text instead; the round carries on. The
// chat stops early once the most recent log entries repeat verbatim, the
// signal that participants have nothing left to add.
package groupchat

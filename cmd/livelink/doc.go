// Command livelink reconciles live photo pairs on a media server: it finds
// photo assets whose filename matches a companion video but which lack the
// server-side link, previews and confirms the candidate set, applies the
// links through the server API, and writes CSV audit trails that later
// unlink runs can consume.
package main

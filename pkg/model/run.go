package model

import (
	"fmt"
	"time"
)

// Operation records one critical-section entry: which peer changed the
// shared integer, and from what to what.
type Operation struct {
	Seq  int `json:"seq"`
	Peer int `json:"peer"`
	From int `json:"from"`
	To   int `json:"to"`
}

// String renders the operation in its log form.
func (o Operation) String() string {
	return fmt.Sprintf("Operation %d: Process %d changed critical int from %d to %d", o.Seq, o.Peer, o.From, o.To)
}

// Run summarizes one simulation run as persisted by the store.
type Run struct {
	ID         string    `json:"id"`
	Peers      int       `json:"peers"`
	Duration   int64     `json:"duration"`
	Started    time.Time `json:"started_at"`
	Finished   time.Time `json:"finished_at"`
	Messages   int       `json:"messages"`
	Operations int       `json:"operations"`
}

package search

import (
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
)

// Monitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results during retrieval.
type Monitor interface {
	Start(query string)
	AfterVectorSearch(hits []*index.Hit)
	AfterLexicalSearch(hits []*index.Hit)
	Degraded(err error)
	Finish(result *core.RetrievalResult)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                    {}
func (n *noopMonitor) AfterVectorSearch(_ []*index.Hit)  {}
func (n *noopMonitor) AfterLexicalSearch(_ []*index.Hit) {}
func (n *noopMonitor) Degraded(_ error)                  {}
func (n *noopMonitor) Finish(_ *core.RetrievalResult)    {}

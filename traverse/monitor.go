package traverse

import "github.com/poiesic/grapho/core"

// Monitor provides hooks to observe a traversal.
// Implement this interface to track intermediate steps during a search.
type Monitor interface {
	Start()
	AfterSeedSearch(ids []string)
	NodeVisited(id string, depth int)
	TagExpanded(tag core.Tag, depth int)
	Selected(id string, depth int)
	Finish(ids []string)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start()                        {}
func (n *noopMonitor) AfterSeedSearch(_ []string)    {}
func (n *noopMonitor) NodeVisited(_ string, _ int)   {}
func (n *noopMonitor) TagExpanded(_ core.Tag, _ int) {}
func (n *noopMonitor) Selected(_ string, _ int)      {}
func (n *noopMonitor) Finish(_ []string)             {}

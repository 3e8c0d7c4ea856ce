package idgen

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init sets up the payment id generator. nodeID must be unique per instance.
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("idgen init failed: %w", err)
	}
	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

// New generates a payment id. Panics if Init was never called.
func New() uint64 {
	mu.Lock()
	n := node
	mu.Unlock()
	if n == nil {
		panic("idgen: snowflake node not initialized")
	}
	return uint64(n.Generate().Int64())
}

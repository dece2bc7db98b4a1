package alerts

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ternarybob/deepstock/internal/models"
)

// ConsoleChannel writes the plain-text rendering of alerts to a writer.
// Used for dry runs and when no remote channel is configured.
type ConsoleChannel struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleChannel creates a console channel writing to w
func NewConsoleChannel(w io.Writer) *ConsoleChannel {
	return &ConsoleChannel{w: w}
}

func (c *ConsoleChannel) Name() string {
	return "console"
}

func (c *ConsoleChannel) Send(ctx context.Context, alert *models.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule := strings.Repeat("─", 60)
	_, err := fmt.Fprintf(c.w, "%s\n%s\n%s\n\n", rule, alert.Text, rule)
	return err
}

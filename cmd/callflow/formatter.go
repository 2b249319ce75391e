package main

import (
	"fmt"

	"github.com/deepnoodle-ai/callflow"
	"github.com/fatih/color"
)

// colorFormatter prints node progress to the terminal.
type colorFormatter struct {
	node     *color.Color
	response *color.Color
	detail   *color.Color
	failure  *color.Color
}

var _ callflow.WorkflowFormatter = (*colorFormatter)(nil)

func newColorFormatter() *colorFormatter {
	return &colorFormatter{
		node:     color.New(color.FgCyan, color.Bold),
		response: color.New(color.FgGreen),
		detail:   color.New(color.FgHiBlack),
		failure:  color.New(color.FgRed),
	}
}

func (f *colorFormatter) PrintNodeStart(nodeID string, kind callflow.NodeKind) {
	f.node.Printf("▶ %s", nodeID)
	f.detail.Printf(" (%s)\n", kind)
}

func (f *colorFormatter) PrintNodeOutput(nodeID string, result *callflow.NodeResult) {
	if result.Response != "" {
		f.response.Printf("  %s\n", result.Response)
	}
	switch {
	case result.Transfer != nil:
		f.detail.Printf("  transfer to %s\n", result.Transfer.Destination)
	case result.Condition != nil && result.Condition.Matched:
		f.detail.Printf("  matched condition %d %s\n", result.Condition.Index, result.Condition.ID)
	case result.Condition != nil:
		f.detail.Println("  no condition matched")
	}
	for key, value := range result.Variables {
		f.detail.Printf("  %s = %v\n", key, value)
	}
}

func (f *colorFormatter) PrintNodeError(nodeID string, err error) {
	f.failure.Println(fmt.Sprintf("  %s failed: %v", nodeID, err))
}

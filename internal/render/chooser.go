package render

import (
	"context"

	"github.com/forPelevin/vertclip/internal/types"
)

// PickTitle chooses the suggestion at a fixed rank, falling back to the top
// one when fewer suggestions exist. It stands in for an interactive picker.
type PickTitle struct {
	Index int
}

func (p PickTitle) ChooseTitle(_ context.Context, _ types.SelectedClip, titles []string) (string, error) {
	if len(titles) == 0 {
		return "", nil
	}
	if p.Index > 0 && p.Index < len(titles) {
		return titles[p.Index], nil
	}
	return titles[0], nil
}

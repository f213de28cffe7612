// Package slack implements a concrete manager.Observer that posts pipeline
// fault and lifecycle events to a Slack channel, grounded on the teacher
// corpus's notification-integration style (a thin adapter translating
// domain events into an external API call, never vetoing by default).
package slack

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/slack-go/slack"

	"github.com/edgepipe/runtime/pkg/controller"
	"github.com/edgepipe/runtime/pkg/fault"
	"github.com/edgepipe/runtime/pkg/manager"
)

// Notifier posts pipeline events to a single Slack channel. It never
// vetoes add/remove/definition-change previews; it only observes.
type Notifier struct {
	client  *slack.Client
	channel string
	log     logr.Logger
}

// New builds a Notifier that posts to channel using token.
func New(token, channel string, log logr.Logger) *Notifier {
	return &Notifier{client: slack.New(token), channel: channel, log: log}
}

func (n *Notifier) post(text string) {
	_, _, err := n.client.PostMessage(n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		n.log.Error(err, "slack: failed to post message")
	}
}

// OnFault posts a message for every Error/EndOfStream/Warning Fault.
func (n *Notifier) OnFault(id string, f fault.Fault) {
	n.post(fmt.Sprintf(":rotating_light: pipeline %q: %s fault in %s/%s: %s",
		id, f.Severity, f.ElementFactory, f.Domain, f.Message))
}

// OnStateChange posts a message whenever a pipeline reaches Errored or
// EndOfStream; routine Running/Suspended/Stopped transitions are not
// noisy enough to page anyone about.
func (n *Notifier) OnStateChange(id string, old, new controller.State) {
	if new != controller.StateErrored && new != controller.StateEndOfStream {
		return
	}
	n.post(fmt.Sprintf("pipeline %q transitioned %s -> %s", id, old, new))
}

// OnAdded posts a message when a pipeline is registered.
func (n *Notifier) OnAdded(id string) {
	n.post(fmt.Sprintf("pipeline %q added", id))
}

// OnRemoved posts a message when a pipeline is dropped.
func (n *Notifier) OnRemoved(id string) {
	n.post(fmt.Sprintf("pipeline %q removed", id))
}

// OnAddPreview never vetoes.
func (n *Notifier) OnAddPreview(manager.PipelineDescription) bool { return false }

// OnRemovePreview never vetoes.
func (n *Notifier) OnRemovePreview(string) bool { return false }

// OnDefinitionChangePreview never vetoes.
func (n *Notifier) OnDefinitionChangePreview(string, string) bool { return false }

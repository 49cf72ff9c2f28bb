package realtime

import "github.com/michaelayoade/dotmac-isp-sub003/pkg/events"

// JobControl sends job control frames over an existing client. It carries
// no state of its own; cancellation outcome arrives as job events.
type JobControl struct {
	client *WebSocketClient
}

// NewJobControl binds a control wrapper to a live client.
func NewJobControl(client *WebSocketClient) JobControl {
	return JobControl{client: client}
}

func (jc JobControl) Cancel() { jc.send(events.ControlCancelJob) }
func (jc JobControl) Pause()  { jc.send(events.ControlPauseJob) }
func (jc JobControl) Resume() { jc.send(events.ControlResumeJob) }

func (jc JobControl) send(msgType string) {
	if jc.client == nil {
		return
	}
	jc.client.Send(events.ControlMessage{Type: msgType})
}

// CampaignControl sends campaign control frames over an existing client.
type CampaignControl struct {
	client *WebSocketClient
}

// NewCampaignControl binds a control wrapper to a live client.
func NewCampaignControl(client *WebSocketClient) CampaignControl {
	return CampaignControl{client: client}
}

func (cc CampaignControl) Cancel() { cc.send(events.ControlCancelCampaign) }
func (cc CampaignControl) Pause()  { cc.send(events.ControlPauseCampaign) }
func (cc CampaignControl) Resume() { cc.send(events.ControlResumeCampaign) }

func (cc CampaignControl) send(msgType string) {
	if cc.client == nil {
		return
	}
	cc.client.Send(events.ControlMessage{Type: msgType})
}

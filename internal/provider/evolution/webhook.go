package evolution

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const remoteSuffix = "@s.whatsapp.net"

// Envelope is the outer webhook body: {"data": <provider event>}. Some
// deployments also put the instance name at the top level, so both spots are
// honored when resolving the owning instance.
type Envelope struct {
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

// MessageEvent is an inbound message webhook, already normalized from the
// provider's nested shape.
type MessageEvent struct {
	InstanceID        string
	ProviderMessageID string
	FromNumber        string
	PushName          string
	Body              string
	Kind              string
	FromMe            bool
	OccurredAt        time.Time
}

// ConnectionEvent reports a session state change. State "open" means
// connected, everything else is treated as disconnected. OwnerNumber is the
// phone number behind the session when the provider includes it.
type ConnectionEvent struct {
	InstanceID  string
	State       string
	OwnerNumber string
}

// PairingEvent carries a fresh QR image for an instance stuck pairing.
type PairingEvent struct {
	InstanceID string
	ImageB64   string
}

// UnrecognizedEvent is the fallback variant: payload parsed but matched no
// known shape. Logged and dropped by the pipeline.
type UnrecognizedEvent struct {
	Raw json.RawMessage
}

// Event is one of MessageEvent, ConnectionEvent, PairingEvent or
// UnrecognizedEvent.
type Event any

type rawEvent struct {
	InstanceID string `json:"instanceId"`
	Instance   string `json:"instance"`

	Key struct {
		RemoteJid string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
		ID        string `json:"id"`
	} `json:"key"`
	PushName string `json:"pushName"`
	Message  struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage *struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
		ImageMessage *struct {
			Caption string `json:"caption"`
		} `json:"imageMessage"`
		AudioMessage *struct {
			Seconds int `json:"seconds"`
		} `json:"audioMessage"`
		VideoMessage *struct {
			Caption string `json:"caption"`
		} `json:"videoMessage"`
		DocumentMessage *struct {
			Caption  string `json:"caption"`
			FileName string `json:"fileName"`
		} `json:"documentMessage"`
	} `json:"message"`
	MessageTimestamp int64 `json:"messageTimestamp"`

	State string `json:"state"`
	Wuid  string `json:"wuid"`

	Base64 string `json:"base64"`
	QRCode *struct {
		Base64 string `json:"base64"`
	} `json:"qrcode"`
}

// ParseWebhook decodes the envelope and classifies the inner event. First
// matching shape wins: message, then connection, then pairing. Anything else
// comes back as UnrecognizedEvent.
func ParseWebhook(body []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("evolution: decode webhook envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("evolution: webhook envelope has no data field")
	}

	var raw rawEvent
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return UnrecognizedEvent{Raw: env.Data}, nil
	}

	instanceID := raw.InstanceID
	if instanceID == "" {
		instanceID = raw.Instance
	}
	if instanceID == "" {
		instanceID = env.Instance
	}

	if raw.Key.RemoteJid != "" && raw.Key.ID != "" {
		body, kind := messageBody(&raw)
		return MessageEvent{
			InstanceID:        instanceID,
			ProviderMessageID: raw.Key.ID,
			FromNumber:        StripRemoteSuffix(raw.Key.RemoteJid),
			PushName:          raw.PushName,
			Body:              body,
			Kind:              kind,
			FromMe:            raw.Key.FromMe,
			OccurredAt:        time.Unix(raw.MessageTimestamp, 0).UTC(),
		}, nil
	}

	if raw.State != "" {
		return ConnectionEvent{
			InstanceID:  instanceID,
			State:       raw.State,
			OwnerNumber: StripRemoteSuffix(raw.Wuid),
		}, nil
	}

	if raw.Base64 != "" || (raw.QRCode != nil && raw.QRCode.Base64 != "") {
		image := raw.Base64
		if image == "" {
			image = raw.QRCode.Base64
		}
		return PairingEvent{
			InstanceID: instanceID,
			ImageB64:   image,
		}, nil
	}

	return UnrecognizedEvent{Raw: env.Data}, nil
}

// StripRemoteSuffix turns a provider remote identifier like
// "5511999999999@s.whatsapp.net" into a bare phone number.
func StripRemoteSuffix(remoteJid string) string {
	return strings.TrimSuffix(remoteJid, remoteSuffix)
}

// messageBody extracts the display body trying plain text, extended text and
// media captions in order, falling back to a media placeholder.
func messageBody(raw *rawEvent) (body, kind string) {
	if raw.Message.Conversation != "" {
		return raw.Message.Conversation, "text"
	}
	if raw.Message.ExtendedTextMessage != nil && raw.Message.ExtendedTextMessage.Text != "" {
		return raw.Message.ExtendedTextMessage.Text, "text"
	}
	if raw.Message.ImageMessage != nil {
		if raw.Message.ImageMessage.Caption != "" {
			return raw.Message.ImageMessage.Caption, "image"
		}
		return "[image]", "image"
	}
	if raw.Message.VideoMessage != nil {
		if raw.Message.VideoMessage.Caption != "" {
			return raw.Message.VideoMessage.Caption, "video"
		}
		return "[video]", "video"
	}
	if raw.Message.AudioMessage != nil {
		return "[audio]", "audio"
	}
	if raw.Message.DocumentMessage != nil {
		if raw.Message.DocumentMessage.Caption != "" {
			return raw.Message.DocumentMessage.Caption, "document"
		}
		if raw.Message.DocumentMessage.FileName != "" {
			return raw.Message.DocumentMessage.FileName, "document"
		}
		return "[document]", "document"
	}
	return "[media]", "text"
}

package evolution

import (
	"testing"
)

func TestParseWebhookTextMessage(t *testing.T) {
	payload := `{
		"instance": "evo-1",
		"data": {
			"key": {"remoteJid": "5511999999999@s.whatsapp.net", "fromMe": false, "id": "m1"},
			"pushName": "Maria",
			"message": {"conversation": "Hi"},
			"messageTimestamp": 1700000000
		}
	}`

	event, err := ParseWebhook([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	msg, ok := event.(MessageEvent)
	if !ok {
		t.Fatalf("event = %T, want MessageEvent", event)
	}
	if msg.InstanceID != "evo-1" {
		t.Errorf("instance = %s, want evo-1", msg.InstanceID)
	}
	if msg.FromNumber != "5511999999999" {
		t.Errorf("from = %s, want bare number", msg.FromNumber)
	}
	if msg.ProviderMessageID != "m1" || msg.Body != "Hi" || msg.Kind != "text" {
		t.Errorf("msg = %+v", msg)
	}
	if msg.OccurredAt.Unix() != 1700000000 {
		t.Errorf("occurredAt = %v", msg.OccurredAt)
	}
	if msg.PushName != "Maria" {
		t.Errorf("pushName = %s", msg.PushName)
	}
}

func TestParseWebhookBodyFallbacks(t *testing.T) {
	cases := []struct {
		name     string
		message  string
		wantBody string
		wantKind string
	}{
		{"extended text", `{"extendedTextMessage": {"text": "linked"}}`, "linked", "text"},
		{"image caption", `{"imageMessage": {"caption": "look"}}`, "look", "image"},
		{"image no caption", `{"imageMessage": {}}`, "[image]", "image"},
		{"audio", `{"audioMessage": {"seconds": 4}}`, "[audio]", "audio"},
		{"video caption", `{"videoMessage": {"caption": "clip"}}`, "clip", "video"},
		{"document filename", `{"documentMessage": {"fileName": "contract.pdf"}}`, "contract.pdf", "document"},
		{"empty media", `{}`, "[media]", "text"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := `{"data": {"key": {"remoteJid": "551@s.whatsapp.net", "id": "m1"}, "message": ` +
				tc.message + `, "messageTimestamp": 1700000000}}`
			event, err := ParseWebhook([]byte(payload))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			msg, ok := event.(MessageEvent)
			if !ok {
				t.Fatalf("event = %T, want MessageEvent", event)
			}
			if msg.Body != tc.wantBody || msg.Kind != tc.wantKind {
				t.Errorf("body=%q kind=%q, want %q %q", msg.Body, msg.Kind, tc.wantBody, tc.wantKind)
			}
		})
	}
}

func TestParseWebhookConnection(t *testing.T) {
	payload := `{"data": {"instanceId": "evo-1", "state": "open", "wuid": "5511888888888@s.whatsapp.net"}}`

	event, err := ParseWebhook([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	conn, ok := event.(ConnectionEvent)
	if !ok {
		t.Fatalf("event = %T, want ConnectionEvent", event)
	}
	if conn.InstanceID != "evo-1" || conn.State != "open" {
		t.Errorf("conn = %+v", conn)
	}
	if conn.OwnerNumber != "5511888888888" {
		t.Errorf("owner = %s, want bare session number", conn.OwnerNumber)
	}
}

func TestParseWebhookPairing(t *testing.T) {
	payload := `{"instance": "evo-1", "data": {"qrcode": {"base64": "img"}}}`

	event, err := ParseWebhook([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pairing, ok := event.(PairingEvent)
	if !ok {
		t.Fatalf("event = %T, want PairingEvent", event)
	}
	if pairing.InstanceID != "evo-1" || pairing.ImageB64 != "img" {
		t.Errorf("pairing = %+v", pairing)
	}
}

func TestParseWebhookFlatPairingImage(t *testing.T) {
	payload := `{"instance": "evo-1", "data": {"base64": "flat-img"}}`

	event, err := ParseWebhook([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pairing, ok := event.(PairingEvent)
	if !ok {
		t.Fatalf("event = %T, want PairingEvent", event)
	}
	if pairing.ImageB64 != "flat-img" {
		t.Errorf("image = %s", pairing.ImageB64)
	}
}

func TestParseWebhookUnrecognized(t *testing.T) {
	payload := `{"data": {"something": "else"}}`

	event, err := ParseWebhook([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := event.(UnrecognizedEvent); !ok {
		t.Fatalf("event = %T, want UnrecognizedEvent", event)
	}
}

func TestParseWebhookMalformed(t *testing.T) {
	if _, err := ParseWebhook([]byte("not json")); err == nil {
		t.Fatal("expected error on malformed body")
	}
	if _, err := ParseWebhook([]byte(`{"no": "data"}`)); err == nil {
		t.Fatal("expected error on missing data")
	}
}

func TestStripRemoteSuffix(t *testing.T) {
	if got := StripRemoteSuffix("5511999999999@s.whatsapp.net"); got != "5511999999999" {
		t.Errorf("got %s", got)
	}
	if got := StripRemoteSuffix("5511999999999"); got != "5511999999999" {
		t.Errorf("got %s", got)
	}
}

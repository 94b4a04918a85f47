package dispatch

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// PushNotifier tries the WS registry first and falls back to posting the
// event to a webhook endpoint (e.g. a mobile push relay).
type PushNotifier struct {
	Endpoint string
	Key      string // optional bearer token for the relay
	Client   *http.Client
	WS       *WSRegistry
}

func NewPushNotifier(endpoint, key string, ws *WSRegistry) *PushNotifier {
	return &PushNotifier{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws}
}

func (p *PushNotifier) Notify(userID int64, ev Event) error {
	if p.WS != nil {
		if err := p.WS.Notify(userID, ev); err == nil {
			return nil
		}
	}
	if p.Endpoint == "" {
		return nil
	}
	body := map[string]interface{}{"user_id": userID, "event": ev}
	b, _ := json.Marshal(body)
	req, err := http.NewRequest("POST", p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Key != "" {
		req.Header.Set("Authorization", "Bearer "+p.Key)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

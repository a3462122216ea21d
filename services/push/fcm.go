package pushsvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/trezcool/shule/core"
)

var fcmEndpoint = "https://fcm.googleapis.com/fcm/send"

type (
	fcmNotification struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}

	fcmPayload struct {
		To           string            `json:"to"`
		Notification fcmNotification   `json:"notification"`
		Data         map[string]string `json:"data,omitempty"`
	}

	fcmService struct {
		key    string
		client *http.Client
		logger core.Logger
	}
)

var _ core.PushService = (*fcmService)(nil)

func NewFCMService(logger core.Logger) *fcmService {
	return &fcmService{
		key:    core.Conf.FCMServerKey,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (svc fcmService) SendMessages(messages ...*core.PushMessage) {
	for _, msg := range messages {
		msg := msg
		go svc.send(msg)
	}
}

func (svc fcmService) send(msg *core.PushMessage) {
	payload := fcmPayload{
		To: msg.Token,
		Notification: fcmNotification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("encoding push message: %v", err), err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, fcmEndpoint, bytes.NewReader(body))
	if err != nil {
		svc.logger.Error(fmt.Sprintf("preparing push request: %v", err), err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+svc.key)

	res, err := svc.client.Do(req)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending push message: %v", err), err)
		return
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("sending push message - status: %d", res.StatusCode))
	}
}

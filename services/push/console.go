package pushsvc

import (
	"log"
	"sync"

	"github.com/trezcool/shule/core"
)

var (
	SentMessages = make([]core.PushMessage, 0)
	mu           sync.Mutex
)

type consoleService struct {
	disableOutput bool
}

var _ core.PushService = (*consoleService)(nil)

func NewConsoleService() core.PushService {
	return &consoleService{}
}

func (svc consoleService) SendMessages(messages ...*core.PushMessage) {
	for _, msg := range messages {
		if !svc.disableOutput {
			log.Printf("push to %s: %s - %s", msg.Token, msg.Title, msg.Body)
		}
		mu.Lock()
		SentMessages = append(SentMessages, *msg)
		mu.Unlock()
	}
}

func NewConsoleServiceMock() core.PushService {
	return &consoleService{disableOutput: true}
}

// ResetSentMessages clears the captured messages between test runs.
func ResetSentMessages() {
	SentMessages = SentMessages[:0]
}

package auth

import (
	"sync"
	"testing"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/stretchr/testify/assert"
)

func TestGivenNewTokenThenStoreReportsChange(t *testing.T) {
	store := NewTokenStore()
	assert.Equal(t, entities.Token(""), store.Token())
	assert.True(t, store.SetToken("abc"))
	assert.False(t, store.SetToken("abc"))
	assert.Equal(t, entities.Token("abc"), store.Token())
}

func TestConnectionParameters(t *testing.T) {
	store := NewTokenStore()
	params := entities.ConnectionParameters{Host: "http://x", SerialPort: "/dev/ttyACM0", BaudRate: "115200"}
	store.SetConnectionParameters(params)
	assert.Equal(t, params, store.ConnectionParameters())
}

func TestTokenStoreConcurrentAccess(t *testing.T) {
	store := NewTokenStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.SetToken("abc")
		}()
		go func() {
			defer wg.Done()
			_ = store.Token()
		}()
	}
	wg.Wait()
	assert.Equal(t, entities.Token("abc"), store.Token())
}

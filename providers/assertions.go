package providers

import (
	"github.com/HelloHaruSystem/haru-chat-web/src/auth"
	"github.com/HelloHaruSystem/haru-chat-web/src/bridge"
	"github.com/HelloHaruSystem/haru-chat-web/src/conn"
	"github.com/HelloHaruSystem/haru-chat-web/src/hub"
	"github.com/HelloHaruSystem/haru-chat-web/src/service"
	"github.com/HelloHaruSystem/haru-chat-web/src/session"
)

// Compile-time interface assertions.
var (
	_ conn.Dialer              = (*conn.WebsocketDialer)(nil)
	_ session.Transport        = (*conn.Manager)(nil)
	_ session.CredentialSource = auth.Credentials{}
	_ session.CredentialSource = session.StaticCredentials{}
	_ session.Listener         = (*hub.Client)(nil)
	_ session.Listener         = (*bridge.RedisRelay)(nil)
	_ hub.Source               = (*session.Session)(nil)
	_ service.Chat             = (*session.Session)(nil)
	_ bridge.Source            = (*session.Session)(nil)
	_ bridge.Relay             = (*bridge.RedisRelay)(nil)
)

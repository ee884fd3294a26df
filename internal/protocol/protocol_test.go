// internal/protocol/protocol_test.go
package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValidFrames(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"hello", `{"t":"hello","uid":"u1","name":"Alice"}`, TypeHello},
		{"queue join", `{"t":"queue.join"}`, TypeQueueJoin},
		{"queue leave", `{"t":"queue.leave"}`, TypeQueueLeave},
		{"invite create", `{"t":"invite.create"}`, TypeInviteCreate},
		{"invite accept", `{"t":"invite.accept","code":"abc123"}`, TypeInviteAccept},
		{"move", `{"t":"game.move","gameId":"g1","i":4}`, TypeGameMove},
		{"move corner", `{"t":"game.move","gameId":"g1","i":0}`, TypeGameMove},
		{"resign", `{"t":"game.resign","gameId":"g1"}`, TypeGameResign},
		{"rematch offer", `{"t":"rematch.offer"}`, TypeRematchOffer},
		{"rematch accept", `{"t":"rematch.accept","to":"u2"}`, TypeRematchAccept},
		{"rematch decline", `{"t":"rematch.decline","to":"u2"}`, TypeRematchDecline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.T)
		})
	}
}

func TestDecodeMalformedFrames(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `not json at all`},
		{"empty object", `{}`},
		{"missing type", `{"uid":"u1"}`},
		{"hello without uid", `{"t":"hello","name":"Alice"}`},
		{"accept without code", `{"t":"invite.accept"}`},
		{"move without cell", `{"t":"game.move","gameId":"g1"}`},
		{"move without game", `{"t":"game.move","i":4}`},
		{"move cell too high", `{"t":"game.move","gameId":"g1","i":9}`},
		{"move cell negative", `{"t":"game.move","gameId":"g1","i":-1}`},
		{"move cell not a number", `{"t":"game.move","gameId":"g1","i":"4"}`},
		{"resign without game", `{"t":"game.resign"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeUnknownTypePasses(t *testing.T) {
	// Unknown tags decode fine; the dispatcher drops them later.
	f, err := Decode([]byte(`{"t":"future.thing"}`))
	require.NoError(t, err)
	assert.Equal(t, "future.thing", f.T)
}

func TestDecodeMoveCellZeroDistinctFromAbsent(t *testing.T) {
	f, err := Decode([]byte(`{"t":"game.move","gameId":"g1","i":0}`))
	require.NoError(t, err)
	require.NotNil(t, f.Cell)
	assert.Equal(t, 0, *f.Cell)
}

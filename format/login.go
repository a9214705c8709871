package format

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/glennhenry/Stagecore/logger"
	"github.com/glennhenry/Stagecore/message"
	"github.com/glennhenry/Stagecore/utils"
)

// LoginMessageType is the logical type shared by both login wire formats
// below: old clients send a fixed-width binary handshake, newer clients
// send a small JSON object, and either decodes to the same LoginMessage.
const LoginMessageType = "login"

// legacyLoginSize is the fixed frame size of the binary handshake: a
// 32-byte null-padded username followed by a single ready flag byte.
const legacyLoginSize = 33

// LoginMessage is the materialized result of either login format.
type LoginMessage struct {
	Username string
	Ready    bool
}

// Type implements message.Message.
func (LoginMessage) Type() string { return LoginMessageType }

// Class implements message.Message.
func (m LoginMessage) Class() reflect.Type { return reflect.TypeOf(m) }

// EncodeLegacyLogin builds the fixed-width binary handshake frame a legacy
// client would send: a 32-byte null-padded username and a trailing ready
// flag byte.
func EncodeLegacyLogin(username string, ready bool) []byte {
	flag := byte(0)
	if ready {
		flag = 1
	}
	return utils.JoinBytes(utils.MakeFixedLengthStringBytes(username, legacyLoginSize-1), []byte{flag})
}

// NewLegacyLoginFormat returns the format recognizing the fixed-width
// binary login handshake used by pre-JSON clients. Verify accepts only
// frames of exactly legacyLoginSize bytes whose trailing ready-flag byte is
// 0 or 1, as EncodeLegacyLogin writes it.
func NewLegacyLoginFormat(log logger.Logger) Format {
	if log == nil {
		log = logger.Noop{}
	}
	return &TypedFormat[LoginMessage]{
		FormatName: "legacy-login",
		VerifyFn: func(data []byte) bool {
			return len(data) == legacyLoginSize && data[legacyLoginSize-1] <= 1
		},
		DecodeFn: func(data []byte) (LoginMessage, DecodeResult) {
			if len(data) != legacyLoginSize {
				return LoginMessage{}, Failure("unexpected frame size", nil)
			}
			username := utils.ReadStringFromBytes(data[:legacyLoginSize-1])
			ready := data[legacyLoginSize-1] != 0
			log.Debug(func() string {
				return fmt.Sprintf("legacy login decoded: username=%q ready=%s", username, utils.BoolToYesNo(ready))
			})
			return LoginMessage{Username: username, Ready: ready}, Success(nil)
		},
		MaterializeFn: func(m LoginMessage) message.Message { return m },
	}
}

// jsonLoginPayload is the wire shape of the JSON login handshake.
type jsonLoginPayload struct {
	Username string `json:"username"`
	Ready    bool   `json:"ready"`
}

// NewJSONLoginFormat returns the format recognizing the JSON login
// handshake used by current clients. It is a candidate alongside
// NewLegacyLoginFormat; a packet matches exactly one of the two under
// normal operation since fixed-width binary frames are never valid JSON and
// a JSON object ends in '}', which the legacy flag-byte check rejects.
func NewJSONLoginFormat(log logger.Logger) Format {
	if log == nil {
		log = logger.Noop{}
	}
	return &TypedFormat[jsonLoginPayload]{
		FormatName: "json-login",
		VerifyFn: func(data []byte) bool {
			return utils.IsJsonString(string(data))
		},
		DecodeFn: func(data []byte) (jsonLoginPayload, DecodeResult) {
			var payload jsonLoginPayload
			if err := json.Unmarshal(data, &payload); err != nil {
				return jsonLoginPayload{}, Failure("invalid login payload", err)
			}
			return payload, Success(nil)
		},
		MaterializeFn: func(p jsonLoginPayload) message.Message {
			return LoginMessage{Username: p.Username, Ready: p.Ready}
		},
	}
}

package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec 命令的编解码。帧边界由传输层保证，这里只处理单条消息。
type Codec interface {
	Name() string
	Encode(cmd Command) ([]byte, error)
	Decode(data []byte) (Inbound, error)
	DecodeArg(arg []byte, v any) error
}

// ErrMissingName 信封缺少 name 字段
var ErrMissingName = errors.New("command without name")

// JSON 文本编码（WebSocket 文本帧 / TCP 行）
var JSON Codec = jsonCodec{}

// Msgpack 二进制编码（WebSocket 二进制帧）
var Msgpack Codec = msgpackCodec{}

// CodecByName 按名称选择编码，未知名称回退到 JSON
func CodecByName(name string) Codec {
	if name == Msgpack.Name() {
		return Msgpack
	}
	return JSON
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(cmd Command) ([]byte, error) {
	return json.Marshal(cmd)
}

func (jsonCodec) Decode(data []byte) (Inbound, error) {
	var env struct {
		Name string          `json:"name"`
		Arg  json.RawMessage `json:"arg,omitempty"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, errors.Wrap(err, "decode json command")
	}
	if env.Name == "" {
		return Inbound{}, ErrMissingName
	}
	return Inbound{Name: env.Name, Arg: env.Arg}, nil
}

func (jsonCodec) DecodeArg(arg []byte, v any) error {
	if len(arg) == 0 {
		return errors.New("missing arg")
	}
	return errors.Wrap(json.Unmarshal(arg, v), "decode json arg")
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Encode(cmd Command) ([]byte, error) {
	return msgpack.Marshal(cmd)
}

func (msgpackCodec) Decode(data []byte) (Inbound, error) {
	var env struct {
		Name string             `msgpack:"name"`
		Arg  msgpack.RawMessage `msgpack:"arg,omitempty"`
	}
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Inbound{}, errors.Wrap(err, "decode msgpack command")
	}
	if env.Name == "" {
		return Inbound{}, ErrMissingName
	}
	return Inbound{Name: env.Name, Arg: env.Arg}, nil
}

func (msgpackCodec) DecodeArg(arg []byte, v any) error {
	if len(arg) == 0 {
		return errors.New("missing arg")
	}
	return errors.Wrap(msgpack.Unmarshal(arg, v), "decode msgpack arg")
}

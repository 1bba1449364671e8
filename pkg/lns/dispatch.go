package lns

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"

	"go.station.network/s2e/pkg/errors"
	"go.station.network/s2e/pkg/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errUnknownMsgType = errors.Define("unknown_msgtype", "no handler registered for msgtype `{msgtype}`")

// Handler decodes and acts on one message kind. raw is the full message
// bytes; the handler decodes it into its own typed struct.
type Handler func(raw []byte) error

// Dispatcher routes downstream messages to per-msgtype handlers (spec.md
// §4.8). It does not touch MuxTime itself; the Router handlers that
// refresh it are listed on MuxTimeState.
type Dispatcher struct {
	handlers map[string]Handler
	Log      log.Interface
}

// NewDispatcher returns an empty Dispatcher; register handlers with On.
func NewDispatcher(logger log.Interface) *Dispatcher {
	if logger == nil {
		logger = log.Noop()
	}
	return &Dispatcher{handlers: map[string]Handler{}, Log: logger}
}

// On registers (or replaces) the handler for msgtype.
func (d *Dispatcher) On(msgtype string, h Handler) { d.handlers[msgtype] = h }

// Dispatch peeks raw's msgtype field and invokes the matching handler.
func (d *Dispatcher) Dispatch(raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	h, ok := d.handlers[env.MsgType]
	if !ok {
		return errUnknownMsgType.WithAttributes("msgtype", env.MsgType)
	}
	return h(raw)
}

// decodeVia is the shared two-phase decode: jsoniter into a generic map,
// then mapstructure into dst, so callers get lenient field coercion (e.g.
// a DR encoded as a JSON number or string) the way the LNS-side stack's
// own config decoding does.
func decodeVia(raw []byte, dst interface{}) error {
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	return dec.Decode(generic)
}

// DecodeRouterConfig decodes raw as a RouterConfig.
func DecodeRouterConfig(raw []byte) (RouterConfig, error) {
	var m RouterConfig
	err := decodeVia(raw, &m)
	return m, err
}

// DecodeDnMsg decodes raw as a DnMsg.
func DecodeDnMsg(raw []byte) (DnMsg, error) {
	var m DnMsg
	err := decodeVia(raw, &m)
	return m, err
}

// DecodeDnSched decodes raw as a DnSched.
func DecodeDnSched(raw []byte) (DnSched, error) {
	var m DnSched
	err := decodeVia(raw, &m)
	return m, err
}

// DecodeTimesyncDown decodes raw as a TimesyncDown.
func DecodeTimesyncDown(raw []byte) (TimesyncDown, error) {
	var m TimesyncDown
	err := decodeVia(raw, &m)
	return m, err
}

// DecodeRunCmd decodes raw as a RunCmd.
func DecodeRunCmd(raw []byte) (RunCmd, error) {
	var m RunCmd
	err := decodeVia(raw, &m)
	return m, err
}

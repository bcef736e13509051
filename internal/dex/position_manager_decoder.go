package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"positionScope/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	Topic0Map map[string]string
}

// PositionManagerDecoder decodes NonfungiblePositionManager events.
type PositionManagerDecoder struct {
	managerABI  abi.ABI
	topicToName map[string]string
}

// NewPositionManagerDecoder builds a position-manager decoder.
func NewPositionManagerDecoder(cfg DecoderConfig) (*PositionManagerDecoder, error) {
	managerABI, err := PositionManagerABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, 4)
	for _, name := range []string{
		model.EventIncreaseLiquidity,
		model.EventDecreaseLiquidity,
		model.EventCollect,
		model.EventTransfer,
	} {
		topicToName[strings.ToLower(managerABI.Events[name].ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &PositionManagerDecoder{
		managerABI:  managerABI,
		topicToName: topicToName,
	}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *PositionManagerDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *PositionManagerDecoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid manager address: %s", log.Address)
	}

	var (
		decoded interface{}
		err     error
	)
	switch name {
	case model.EventIncreaseLiquidity, model.EventDecreaseLiquidity:
		decoded, err = d.decodeLiquidity(name, log)
	case model.EventCollect:
		decoded, err = d.decodeCollect(log)
	case model.EventTransfer:
		decoded, err = d.decodeTransfer(log)
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
	if err != nil {
		return nil, err
	}
	return buildTypedEvent(log, name, decoded), nil
}

func normalizeEventName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "increaseliquidity":
		return model.EventIncreaseLiquidity
	case "decreaseliquidity":
		return model.EventDecreaseLiquidity
	case "collect":
		return model.EventCollect
	case "transfer":
		return model.EventTransfer
	default:
		return ""
	}
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data}
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     strings.ToLower(log.Address),
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		Raw:         raw,
	}
}

func (d *PositionManagerDecoder) decodeLiquidity(name string, log model.LogRecord) (model.LiquidityEventData, error) {
	event := d.managerABI.Events[name]
	tokenID, err := d.parseTokenIDTopic(event, log.Topics)
	if err != nil {
		return model.LiquidityEventData{}, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.LiquidityEventData{}, err
	}
	if len(values) != 3 {
		return model.LiquidityEventData{}, fmt.Errorf("unexpected %s values: %d", name, len(values))
	}

	liquidity, err := asBigInt(values[0])
	if err != nil {
		return model.LiquidityEventData{}, err
	}
	amount0, err := asBigInt(values[1])
	if err != nil {
		return model.LiquidityEventData{}, err
	}
	amount1, err := asBigInt(values[2])
	if err != nil {
		return model.LiquidityEventData{}, err
	}

	return model.LiquidityEventData{
		TokenID:   tokenID.String(),
		Liquidity: liquidity.String(),
		Amount0:   amount0.String(),
		Amount1:   amount1.String(),
	}, nil
}

func (d *PositionManagerDecoder) decodeCollect(log model.LogRecord) (model.CollectEventData, error) {
	event := d.managerABI.Events[model.EventCollect]
	tokenID, err := d.parseTokenIDTopic(event, log.Topics)
	if err != nil {
		return model.CollectEventData{}, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.CollectEventData{}, err
	}
	if len(values) != 3 {
		return model.CollectEventData{}, fmt.Errorf("unexpected collect values: %d", len(values))
	}

	recipient, err := asAddress(values[0])
	if err != nil {
		return model.CollectEventData{}, err
	}
	amount0, err := asBigInt(values[1])
	if err != nil {
		return model.CollectEventData{}, err
	}
	amount1, err := asBigInt(values[2])
	if err != nil {
		return model.CollectEventData{}, err
	}

	return model.CollectEventData{
		TokenID:   tokenID.String(),
		Recipient: strings.ToLower(recipient.Hex()),
		Amount0:   amount0.String(),
		Amount1:   amount1.String(),
	}, nil
}

func (d *PositionManagerDecoder) decodeTransfer(log model.LogRecord) (model.TransferEventData, error) {
	event := d.managerABI.Events[model.EventTransfer]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.TransferEventData{}, err
	}

	var indexed struct {
		From    common.Address
		To      common.Address
		TokenId *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.TransferEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	return model.TransferEventData{
		From:    strings.ToLower(indexed.From.Hex()),
		To:      strings.ToLower(indexed.To.Hex()),
		TokenID: indexed.TokenId.String(),
	}, nil
}

func (d *PositionManagerDecoder) parseTokenIDTopic(event abi.Event, topics []string) (*big.Int, error) {
	indexedTopics, err := parseIndexedTopics(event, topics)
	if err != nil {
		return nil, err
	}
	var indexed struct {
		TokenId *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	return indexed.TokenId, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

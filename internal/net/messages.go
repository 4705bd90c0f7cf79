package net

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"sleipnir/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrSymbolTooLong      = errors.New("symbol longer than wire field")
)

// All frames are big-endian: a 2-byte type followed by a fixed-size body
// (plus a length-prefixed string for error responses). Symbols travel in a
// fixed 8-byte NUL-padded field; identifiers are raw 16-byte uuids.

type MessageType uint16

const (
	NewOrder MessageType = iota
	CancelOrder
	SubscribeTrades
	SubscribeBestPrices
)

type ResponseType uint16

const (
	OrderAccepted ResponseType = iota
	OrderRemoved
	ErrorReport
	TradeReport
	BestPriceReport
)

type ErrorCode uint16

const (
	CodeInvalidArgument ErrorCode = iota + 1
	CodeNotFound
	CodeMalformed
)

// Wire format constants.
const (
	headerLen = 2

	symbolLen = 8
	idLen     = 16

	newOrderBodyLen      = symbolLen + 1 + 4 + 8
	cancelOrderBodyLen   = idLen
	orderAcceptedBodyLen = idLen
	orderRemovedBodyLen  = idLen + symbolLen + 1 + 4 + 8
	errorHeaderLen       = 2 + 2
	tradeBodyLen         = 3*idLen + symbolLen + 4 + 8
	bestPriceBodyLen     = symbolLen + 1 + 4 + 8
)

// --- Requests (client -> server) --------------------------------------------

type Request interface {
	Type() MessageType
}

type NewOrderRequest struct {
	Order common.Order
}

func (NewOrderRequest) Type() MessageType { return NewOrder }

type CancelOrderRequest struct {
	OrderID uuid.UUID
}

func (CancelOrderRequest) Type() MessageType { return CancelOrder }

type SubscribeTradesRequest struct{}

func (SubscribeTradesRequest) Type() MessageType { return SubscribeTrades }

type SubscribeBestPricesRequest struct{}

func (SubscribeBestPricesRequest) Type() MessageType { return SubscribeBestPrices }

// ReadRequest reads and parses the next request frame off the stream.
func ReadRequest(r io.Reader) (Request, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	switch MessageType(binary.BigEndian.Uint16(header[:])) {
	case NewOrder:
		var body [newOrderBodyLen]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return nil, err
		}
		return NewOrderRequest{Order: unpackOrder(body[:])}, nil
	case CancelOrder:
		var body [cancelOrderBodyLen]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return nil, err
		}
		return CancelOrderRequest{OrderID: uuid.UUID(body)}, nil
	case SubscribeTrades:
		return SubscribeTradesRequest{}, nil
	case SubscribeBestPrices:
		return SubscribeBestPricesRequest{}, nil
	default:
		return nil, ErrInvalidMessageType
	}
}

// EncodeNewOrder frames an order submission.
func EncodeNewOrder(order common.Order) ([]byte, error) {
	buf := make([]byte, headerLen+newOrderBodyLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	if err := packOrder(buf[headerLen:], order); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeCancelOrder frames a cancellation by external order id.
func EncodeCancelOrder(orderID uuid.UUID) []byte {
	buf := make([]byte, headerLen+cancelOrderBodyLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(CancelOrder))
	copy(buf[headerLen:], orderID[:])
	return buf
}

// EncodeSubscribe frames a bodyless subscribe request.
func EncodeSubscribe(feed MessageType) []byte {
	buf := make([]byte, headerLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(feed))
	return buf
}

// --- Responses (server -> client) -------------------------------------------

type Response interface {
	Type() ResponseType
}

type OrderAcceptedResponse struct {
	OrderID uuid.UUID
}

func (OrderAcceptedResponse) Type() ResponseType { return OrderAccepted }

type OrderRemovedResponse struct {
	OrderID uuid.UUID
	Order   common.Order
}

func (OrderRemovedResponse) Type() ResponseType { return OrderRemoved }

type ErrorResponse struct {
	Code    ErrorCode
	Message string
}

func (ErrorResponse) Type() ResponseType { return ErrorReport }

type TradeResponse struct {
	Trade common.Trade
}

func (TradeResponse) Type() ResponseType { return TradeReport }

type BestPriceResponse struct {
	BestPrice common.BestPrice
}

func (BestPriceResponse) Type() ResponseType { return BestPriceReport }

// ReadResponse reads and parses the next response frame off the stream.
func ReadResponse(r io.Reader) (Response, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	switch ResponseType(binary.BigEndian.Uint16(header[:])) {
	case OrderAccepted:
		var body [orderAcceptedBodyLen]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return nil, err
		}
		return OrderAcceptedResponse{OrderID: uuid.UUID(body)}, nil
	case OrderRemoved:
		var body [orderRemovedBodyLen]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return nil, err
		}
		return OrderRemovedResponse{
			OrderID: uuid.UUID([16]byte(body[:idLen])),
			Order:   unpackOrder(body[idLen:]),
		}, nil
	case ErrorReport:
		var head [errorHeaderLen]byte
		if _, err := io.ReadFull(r, head[:]); err != nil {
			return nil, err
		}
		msg := make([]byte, binary.BigEndian.Uint16(head[2:4]))
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, err
		}
		return ErrorResponse{
			Code:    ErrorCode(binary.BigEndian.Uint16(head[0:2])),
			Message: string(msg),
		}, nil
	case TradeReport:
		var body [tradeBodyLen]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return nil, err
		}
		return TradeResponse{Trade: unpackTrade(body[:])}, nil
	case BestPriceReport:
		var body [bestPriceBodyLen]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return nil, err
		}
		return BestPriceResponse{BestPrice: common.BestPrice{
			Symbol: unpackSymbol(body[0:symbolLen]),
			Side:   common.Side(body[symbolLen]),
			Price:  binary.BigEndian.Uint32(body[symbolLen+1 : symbolLen+5]),
			Volume: binary.BigEndian.Uint64(body[symbolLen+5:]),
		}}, nil
	default:
		return nil, ErrInvalidMessageType
	}
}

func EncodeOrderAccepted(orderID uuid.UUID) []byte {
	buf := make([]byte, headerLen+orderAcceptedBodyLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(OrderAccepted))
	copy(buf[headerLen:], orderID[:])
	return buf
}

func EncodeOrderRemoved(orderID uuid.UUID, order common.Order) ([]byte, error) {
	buf := make([]byte, headerLen+orderRemovedBodyLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(OrderRemoved))
	copy(buf[headerLen:], orderID[:])
	if err := packOrder(buf[headerLen+idLen:], order); err != nil {
		return nil, err
	}
	return buf, nil
}

func EncodeError(code ErrorCode, message string) []byte {
	buf := make([]byte, headerLen+errorHeaderLen+len(message))
	binary.BigEndian.PutUint16(buf[0:2], uint16(ErrorReport))
	binary.BigEndian.PutUint16(buf[2:4], uint16(code))
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(message)))
	copy(buf[6:], message)
	return buf
}

func EncodeTrade(trade common.Trade) ([]byte, error) {
	buf := make([]byte, headerLen+tradeBodyLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(TradeReport))
	body := buf[headerLen:]
	copy(body[0:idLen], trade.TradeID[:])
	copy(body[idLen:2*idLen], trade.BuyOrderID[:])
	copy(body[2*idLen:3*idLen], trade.SellOrderID[:])
	if err := packSymbol(body[3*idLen:3*idLen+symbolLen], trade.Symbol); err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint32(body[3*idLen+symbolLen:], trade.Price)
	binary.BigEndian.PutUint64(body[3*idLen+symbolLen+4:], trade.Volume)
	return buf, nil
}

func EncodeBestPrice(bp common.BestPrice) ([]byte, error) {
	buf := make([]byte, headerLen+bestPriceBodyLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(BestPriceReport))
	body := buf[headerLen:]
	if err := packSymbol(body[0:symbolLen], bp.Symbol); err != nil {
		return nil, err
	}
	body[symbolLen] = byte(bp.Side)
	binary.BigEndian.PutUint32(body[symbolLen+1:], bp.Price)
	binary.BigEndian.PutUint64(body[symbolLen+5:], bp.Volume)
	return buf, nil
}

// --- Field packing -----------------------------------------------------------

func packOrder(dst []byte, order common.Order) error {
	if err := packSymbol(dst[0:symbolLen], order.Symbol); err != nil {
		return err
	}
	dst[symbolLen] = byte(order.Side)
	binary.BigEndian.PutUint32(dst[symbolLen+1:], order.Price)
	binary.BigEndian.PutUint64(dst[symbolLen+5:], order.Volume)
	return nil
}

func unpackOrder(src []byte) common.Order {
	return common.Order{
		Symbol: unpackSymbol(src[0:symbolLen]),
		Side:   common.Side(src[symbolLen]),
		Price:  binary.BigEndian.Uint32(src[symbolLen+1 : symbolLen+5]),
		Volume: binary.BigEndian.Uint64(src[symbolLen+5:]),
	}
}

func unpackTrade(src []byte) common.Trade {
	return common.Trade{
		TradeID:     uuid.UUID([16]byte(src[0:idLen])),
		BuyOrderID:  uuid.UUID([16]byte(src[idLen : 2*idLen])),
		SellOrderID: uuid.UUID([16]byte(src[2*idLen : 3*idLen])),
		Symbol:      unpackSymbol(src[3*idLen : 3*idLen+symbolLen]),
		Price:       binary.BigEndian.Uint32(src[3*idLen+symbolLen:]),
		Volume:      binary.BigEndian.Uint64(src[3*idLen+symbolLen+4:]),
	}
}

func packSymbol(dst []byte, symbol string) error {
	if len(symbol) > symbolLen {
		return fmt.Errorf("%w: %q", ErrSymbolTooLong, symbol)
	}
	copy(dst, symbol)
	return nil
}

func unpackSymbol(src []byte) string {
	return string(bytes.TrimRight(src, "\x00"))
}

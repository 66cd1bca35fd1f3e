package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// StreamClient subscribes to exchange kline websockets and emits closed
// candles. The stream URL is venue-specific; the payload format follows the
// common combined-kline shape.
type StreamClient struct {
	BaseURL string
	dialer  *websocket.Dialer
	log     zerolog.Logger
}

// NewStreamClient builds a websocket client against baseURL (wss://host/ws).
func NewStreamClient(baseURL string, log zerolog.Logger) *StreamClient {
	return &StreamClient{
		BaseURL: baseURL,
		dialer:  websocket.DefaultDialer,
		log:     log.With().Str("component", "market-stream").Logger(),
	}
}

type klineMessage struct {
	EventType string `json:"e"`
	Kline     struct {
		StartTime int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Final     bool   `json:"x"`
	} `json:"k"`
}

// SubscribeCandles streams closed candles for a symbol/timeframe. It returns
// the channel and a stop function; the channel closes when the stream ends.
func (c *StreamClient) SubscribeCandles(ctx context.Context, symbol, timeframe string) (<-chan Candle, func(), error) {
	stream := fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), timeframe)
	u := fmt.Sprintf("%s/%s", c.BaseURL, stream)

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial candle stream: %w", err)
	}

	out := make(chan Candle, 100)
	var once sync.Once
	// stop only tears down the connection; the reader goroutine owns the
	// channel and closes it once its read loop ends, so a concurrent stop can
	// never race a send in flight.
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		})
	}

	go func() {
		defer close(out)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				c.log.Warn().Err(err).Str("symbol", symbol).Msg("candle stream read error")
				return
			}

			candle, final, err := parseKlineMessage(msg)
			if err != nil {
				c.log.Warn().Err(err).Msg("candle stream parse error")
				continue
			}
			if !final {
				continue // only closed candles are evaluated
			}
			out <- candle
		}
	}()

	return out, stop, nil
}

func parseKlineMessage(msg []byte) (Candle, bool, error) {
	var km klineMessage
	if err := json.Unmarshal(msg, &km); err != nil {
		return Candle{}, false, err
	}
	open, err := strconv.ParseFloat(km.Kline.Open, 64)
	if err != nil {
		return Candle{}, false, fmt.Errorf("parse open: %w", err)
	}
	high, _ := strconv.ParseFloat(km.Kline.High, 64)
	low, _ := strconv.ParseFloat(km.Kline.Low, 64)
	closePrice, _ := strconv.ParseFloat(km.Kline.Close, 64)
	volume, _ := strconv.ParseFloat(km.Kline.Volume, 64)

	return Candle{
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		OpenTime:  time.UnixMilli(km.Kline.StartTime),
		CloseTime: time.UnixMilli(km.Kline.CloseTime),
	}, km.Kline.Final, nil
}

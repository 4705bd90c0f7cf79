package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"sleipnir/internal/common"
	exchnet "sleipnir/internal/net"
)

func main() {
	// CLI Parameter Parsing
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'trades', 'bestprices']")

	// Order Parameters
	symbol := flag.String("symbol", "AAPL", "Symbol (max 8 chars)")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	price := flag.Float64("price", 100.0, "Limit price in major units (converted to minor units)")
	volStr := flag.String("volume", "10", "Volume or comma-separated list (e.g. 10,20,50)")

	// Cancel Parameters
	id := flag.String("id", "", "Order id to cancel")

	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s\n", *serverAddr)

	switch strings.ToLower(*action) {
	case "place":
		side := common.Buy
		if strings.ToLower(*sideStr) == "sell" {
			side = common.Sell
		}
		// Prices are entered in major units and travel in minor units.
		minor := uint32(*price * 100)
		for _, volume := range parseVolumes(*volStr) {
			frame, err := exchnet.EncodeNewOrder(common.Order{
				Symbol: *symbol,
				Side:   side,
				Price:  minor,
				Volume: volume,
			})
			if err != nil {
				log.Fatalf("Failed to encode order: %v", err)
			}
			if _, err := conn.Write(frame); err != nil {
				log.Fatalf("Failed to place order (volume %d): %v", volume, err)
			}
			fmt.Printf("-> Sent %s order: %s %d @ %.2f\n",
				strings.ToUpper(*sideStr), *symbol, volume, *price)
			printResponse(conn)
		}

	case "cancel":
		orderID, err := uuid.Parse(*id)
		if err != nil {
			log.Fatalf("Error: -id must be a valid order id: %v", err)
		}
		if _, err := conn.Write(exchnet.EncodeCancelOrder(orderID)); err != nil {
			log.Fatalf("Failed to send cancel request: %v", err)
		}
		fmt.Printf("-> Sent cancel request for %s\n", orderID)
		printResponse(conn)

	case "trades":
		if _, err := conn.Write(exchnet.EncodeSubscribe(exchnet.SubscribeTrades)); err != nil {
			log.Fatalf("Failed to subscribe: %v", err)
		}
		fmt.Println("Streaming trades... (Press Ctrl+C to exit)")
		stream(conn)

	case "bestprices":
		if _, err := conn.Write(exchnet.EncodeSubscribe(exchnet.SubscribeBestPrices)); err != nil {
			log.Fatalf("Failed to subscribe: %v", err)
		}
		fmt.Println("Streaming best prices... (Press Ctrl+C to exit)")
		stream(conn)

	default:
		log.Fatalf("Unknown action: %s", *action)
	}
}

// parseVolumes splits a comma-separated string into a slice of uint64.
func parseVolumes(input string) []uint64 {
	parts := strings.Split(input, ",")
	var result []uint64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("Warning: Invalid volume '%s', skipping.", p)
		}
	}
	return result
}

// printResponse reads and prints a single response frame.
func printResponse(conn net.Conn) {
	resp, err := exchnet.ReadResponse(conn)
	if err != nil {
		log.Fatalf("Connection lost: %v", err)
	}
	show(resp)
}

// stream prints response frames until the server closes the feed.
func stream(conn net.Conn) {
	for {
		resp, err := exchnet.ReadResponse(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("Connection lost: %v", err)
			}
			return
		}
		show(resp)
	}
}

func show(resp exchnet.Response) {
	switch resp := resp.(type) {
	case exchnet.OrderAcceptedResponse:
		fmt.Printf("Order ID: %s\n", resp.OrderID)

	case exchnet.OrderRemovedResponse:
		fmt.Println("Removed order:")
		fmt.Printf("Symbol: %s\n", resp.Order.Symbol)
		fmt.Printf("  Side: %s\n", resp.Order.Side)
		fmt.Printf(" Price: %s\n", money(resp.Order.Price))
		fmt.Printf("Volume: %d\n", resp.Order.Volume)

	case exchnet.TradeResponse:
		t := resp.Trade
		fmt.Println("---------------------------------------------------")
		fmt.Printf("     Trade ID: %s\n", t.TradeID)
		fmt.Printf(" Buy Order ID: %s\n", t.BuyOrderID)
		fmt.Printf("Sell Order ID: %s\n", t.SellOrderID)
		fmt.Printf("       Symbol: %s\n", t.Symbol)
		fmt.Printf("        Price: %s\n", money(t.Price))
		fmt.Printf("       Volume: %d\n", t.Volume)

	case exchnet.BestPriceResponse:
		bp := resp.BestPrice
		quote := "Bid"
		if bp.Side == common.Sell {
			quote = "Ask"
		}
		fmt.Println("-------------------")
		fmt.Printf("    Symbol: %s\n", bp.Symbol)
		fmt.Printf("Quote Type: %s\n", quote)
		fmt.Printf("     Price: %s\n", money(bp.Price))
		fmt.Printf("    Volume: %d\n", bp.Volume)

	case exchnet.ErrorResponse:
		fmt.Printf("[SERVER ERROR %d] %s\n", resp.Code, resp.Message)
	}
}

func money(minor uint32) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/campus-orders/internal/adapter/storage"
	"github.com/rl1809/campus-orders/internal/core/domain"
	"github.com/rl1809/campus-orders/internal/core/service"
	"github.com/rl1809/campus-orders/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
	price         = 3000
)

type store interface {
	port.CatalogRepository
	port.CartRepository
	port.PaymentRepository
}

// Races totalRequests students for initialStock hoodies through the full
// cart checkout path. Runs in memory unless MYSQL_DSN is set; REDIS_ADDR
// switches the cart lock to Redis.
func main() {
	ctx := context.Background()
	run := uuid.NewString()[:8]

	var db store = storage.NewMemoryAdapter()
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		conn, err := storage.OpenMySQL(ctx, dsn)
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		defer conn.Close()
		if err := storage.Migrate(dsn); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
		db = storage.NewMySQLAdapter(conn)
	}

	var locker port.Locker = service.NewKeyedMutex()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
		locker = storage.NewRedisAdapter(rdb)
	}

	productID := "hoodie-" + run
	if err := db.CreateProduct(ctx, domain.Product{
		ID:          productID,
		Title:       "Faculty hoodie",
		Price:       price,
		Stock:       initialStock,
		IsAvailable: true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}); err != nil {
		log.Fatalf("failed to create product: %v", err)
	}

	carts := service.NewCartService(db, db, locker)
	orders := service.NewOrderService(db, db, carts, nil, service.DuesConfig{Amount: 1, Title: "dues"})

	users := make([]string, totalRequests)
	for i := range users {
		users[i] = fmt.Sprintf("user-%s-%d", run, i)
		if _, err := carts.AddItem(ctx, users[i], productID, 1); err != nil {
			log.Fatalf("failed to fill cart for %s: %v", users[i], err)
		}
	}

	// Counters
	var successCount, soldOutCount, errorCount atomic.Int32
	var firstPayment atomic.Value

	var wg sync.WaitGroup
	start := time.Now()

	for _, u := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()

			p, err := orders.CreateFromCart(ctx, userID, "")
			switch {
			case err == nil:
				successCount.Add(1)
				firstPayment.CompareAndSwap(nil, p)
			case errors.Is(err, service.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("checkout %s: %v", userID, err)
			}
		}(u)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success, soldOut := successCount.Load(), soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Checkouts:  %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d checkouts succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	checkStock(ctx, db, productID, 0)

	// A rejected order hands its unit back
	p, ok := firstPayment.Load().(domain.Payment)
	if !ok {
		return
	}
	if _, err := orders.SubmitProof(ctx, p.UserID, p.ID, "stress://proof"); err != nil {
		log.Fatalf("submit proof: %v", err)
	}
	if _, err := orders.Verify(ctx, "stress-admin", p.ID, domain.DecisionReject, "stress test"); err != nil {
		log.Fatalf("reject: %v", err)
	}
	checkStock(ctx, db, productID, 1)
}

func checkStock(ctx context.Context, db store, productID string, want int) {
	p, err := db.GetProduct(ctx, productID)
	if err != nil || p == nil {
		fmt.Printf("FAIL: could not read stock: %v\n", err)
		return
	}
	fmt.Printf("Final Stock:      %d\n", p.Stock)
	if p.Stock == want {
		fmt.Printf("PASS: Stock is %d\n", want)
	} else {
		fmt.Printf("FAIL: Expected stock %d, got %d\n", want, p.Stock)
	}
}

package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/KasunInd27/CampQuest-sub001/internal/cart"
	"github.com/KasunInd27/CampQuest-sub001/internal/config"
	"github.com/KasunInd27/CampQuest-sub001/internal/database"
	"github.com/KasunInd27/CampQuest-sub001/internal/models"
	"github.com/KasunInd27/CampQuest-sub001/internal/notify"
	"github.com/KasunInd27/CampQuest-sub001/internal/store"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	carts := cart.NewStore(rdb)

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.AMQP.URL != "" {
		conn, ch, err := notify.SetupConn(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Fatalf("Connect to broker: %v", err)
		}
		defer conn.Close()
		defer ch.Close()

		amqpNotifier := notify.NewAMQPNotifier(ch, cfg.AMQP.Exchange)
		defer amqpNotifier.Close()
		notifier = amqpNotifier

		log.Printf("Connected to broker, publishing to exchange %s", cfg.AMQP.Exchange)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/customers", handleCustomers(db))
	mux.HandleFunc("/customers/", handleCustomerByID(db))
	mux.HandleFunc("/products", handleProducts(db))
	mux.HandleFunc("/products/", handleProductByID(db))
	mux.HandleFunc("/cart", handleCart(carts))
	mux.HandleFunc("/cart/", handleCartLine(carts))
	mux.HandleFunc("/orders", handleOrders(db, notifier, cfg))
	mux.HandleFunc("/orders/checkout", handleCheckout(db, carts, notifier, cfg))
	mux.HandleFunc("/orders/", handleOrderByID(db, cfg))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// actorFromRequest reads the identity established by the upstream auth proxy.
// Requests arriving here are already authenticated; the headers are trusted.
func actorFromRequest(r *http.Request) (store.Actor, bool) {
	idStr := r.Header.Get("X-Customer-ID")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return store.Actor{}, false
	}

	role := r.Header.Get("X-Role")
	if role != models.RoleAdmin {
		role = models.RoleCustomer
	}

	return store.Actor{CustomerID: id, Role: role}, true
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, database.ErrEmptyOrder),
		errors.Is(err, database.ErrCartEmpty):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, database.ErrForbidden),
		errors.Is(err, database.ErrEditWindowClosed):
		return http.StatusForbidden
	case errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrCustomerNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrInvalidTransition),
		errors.Is(err, database.ErrOrderNotEditable),
		errors.Is(err, database.ErrOptimisticLockFailed):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func handleCustomers(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Email string `json:"email"`
				Name  string `json:"name"`
				Role  string `json:"role"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			customer, err := store.CreateCustomer(ctx, db, req.Email, req.Name, req.Role)
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}

			respondJSON(w, http.StatusCreated, customer)

		case http.MethodGet:
			page, pageSize := pageParams(r)
			result, err := store.ListCustomers(ctx, db, page, pageSize)
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleCustomerByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/customers/"), 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid customer ID")
			return
		}

		customer, err := store.GetCustomer(ctx, db, id)
		if err != nil {
			respondError(w, statusForError(err), err.Error())
			return
		}

		respondJSON(w, http.StatusOK, customer)
	}
}

func handleProducts(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				SKU         string  `json:"sku"`
				Name        string  `json:"name"`
				Description string  `json:"description"`
				Kind        string  `json:"kind"`
				Price       float64 `json:"price"`
				Quantity    int     `json:"quantity"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			product, err := store.CreateProduct(ctx, db, store.CreateProductRequest{
				SKU:         req.SKU,
				Name:        req.Name,
				Description: req.Description,
				Kind:        models.ProductKind(req.Kind),
				Price:       decimal.NewFromFloat(req.Price),
				Quantity:    req.Quantity,
			})
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}

			respondJSON(w, http.StatusCreated, product)

		case http.MethodGet:
			page, pageSize := pageParams(r)
			result, err := store.ListProducts(ctx, db, page, pageSize)
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleProductByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rest := strings.TrimPrefix(r.URL.Path, "/products/")
		parts := strings.Split(rest, "/")
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid product ID")
			return
		}

		// PUT /products/{id}/quantity: manual restock, admin only.
		if len(parts) == 2 && parts[1] == "quantity" {
			if r.Method != http.MethodPut {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			actor, ok := actorFromRequest(r)
			if !ok || actor.Role != models.RoleAdmin {
				respondError(w, http.StatusForbidden, "Admin role required")
				return
			}

			var req struct {
				Quantity int `json:"quantity"`
				Version  int `json:"version"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			if err := store.SetQuantityOptimistic(ctx, db, id, req.Quantity, req.Version); err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}

			product, err := store.GetProduct(ctx, db, id)
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}

			respondJSON(w, http.StatusOK, product)
			return
		}

		product, err := store.GetProduct(ctx, db, id)
		if err != nil {
			respondError(w, statusForError(err), err.Error())
			return
		}

		respondJSON(w, http.StatusOK, product)
	}
}

func handleCart(carts *cart.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		actor, ok := actorFromRequest(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "Missing customer identity")
			return
		}

		switch r.Method {
		case http.MethodGet:
			lines, err := carts.Get(ctx, actor.CustomerID)
			if err != nil {
				respondError(w, http.StatusInternalServerError, err.Error())
				return
			}
			respondJSON(w, http.StatusOK, map[string]interface{}{"items": lines})

		case http.MethodPost:
			var line cart.Line
			if err := json.NewDecoder(r.Body).Decode(&line); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}
			if err := carts.Add(ctx, actor.CustomerID, line); err != nil {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			respondJSON(w, http.StatusCreated, line)

		case http.MethodDelete:
			if err := carts.Clear(ctx, actor.CustomerID); err != nil {
				respondError(w, http.StatusInternalServerError, err.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleCartLine(carts *cart.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		actor, ok := actorFromRequest(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "Missing customer identity")
			return
		}

		if r.Method != http.MethodDelete {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		// DELETE /cart/{kind}/{productID}
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/cart/"), "/")
		if len(parts) != 2 {
			respondError(w, http.StatusBadRequest, "Invalid cart line path")
			return
		}
		productID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid product ID")
			return
		}

		if err := carts.Remove(ctx, actor.CustomerID, models.ProductKind(parts[0]), productID); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func handleOrders(db *sql.DB, notifier notify.Notifier, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		actor, ok := actorFromRequest(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "Missing customer identity")
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req struct {
				DeliveryAddress string `json:"delivery_address"`
				Items           []struct {
					ProductID  int64   `json:"product_id"`
					Kind       string  `json:"kind"`
					Quantity   int     `json:"quantity"`
					RentalDays int     `json:"rental_days"`
					UnitPrice  float64 `json:"unit_price"`
					Name       string  `json:"name"`
				} `json:"items"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			var items []store.OrderLineRequest
			for _, item := range req.Items {
				items = append(items, store.OrderLineRequest{
					ProductID:  item.ProductID,
					Kind:       models.ProductKind(item.Kind),
					Quantity:   item.Quantity,
					RentalDays: item.RentalDays,
					UnitPrice:  decimal.NewFromFloat(item.UnitPrice),
					Name:       item.Name,
				})
			}

			order, err := store.PlaceOrder(ctx, db, notifier, cfg.Orders, store.PlaceOrderRequest{
				CustomerID:      actor.CustomerID,
				DeliveryAddress: req.DeliveryAddress,
				Items:           items,
			})
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}

			respondJSON(w, http.StatusCreated, order)

		case http.MethodGet:
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			if limit < 1 || limit > 100 {
				limit = 20
			}

			result, err := store.ListOrdersCursor(ctx, db, actor.CustomerID, r.URL.Query().Get("cursor"), limit)
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleCheckout(db *sql.DB, carts *cart.Store, notifier notify.Notifier, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		actor, ok := actorFromRequest(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "Missing customer identity")
			return
		}

		var req struct {
			DeliveryAddress string `json:"delivery_address"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		order, err := store.Checkout(ctx, db, carts, notifier, cfg.Orders, actor.CustomerID, req.DeliveryAddress)
		if err != nil {
			respondError(w, statusForError(err), err.Error())
			return
		}

		respondJSON(w, http.StatusCreated, order)
	}
}

func handleOrderByID(db *sql.DB, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		actor, ok := actorFromRequest(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "Missing customer identity")
			return
		}

		rest := strings.TrimPrefix(r.URL.Path, "/orders/")
		parts := strings.Split(rest, "/")
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		if len(parts) == 1 {
			if r.Method != http.MethodGet {
				respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}

			order, err := store.GetOrder(ctx, db, id)
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}
			if actor.Role != models.RoleAdmin && order.CustomerID != actor.CustomerID {
				respondError(w, http.StatusForbidden, "Not your order")
				return
			}

			respondJSON(w, http.StatusOK, order)
			return
		}

		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		switch parts[1] {
		case "cancel":
			var req struct {
				Reason string `json:"reason"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			order, err := store.Cancel(ctx, db, id, actor, req.Reason)
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}

			respondJSON(w, http.StatusOK, order)

		case "status":
			if actor.Role != models.RoleAdmin {
				respondError(w, http.StatusForbidden, "Admin role required")
				return
			}

			var req struct {
				Status string `json:"status"`
				Reason string `json:"reason"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			var order *models.Order
			if req.Status == models.OrderStatusCancelled {
				order, err = store.Cancel(ctx, db, id, actor, req.Reason)
			} else {
				order, err = store.UpdateStatus(ctx, db, id, req.Status)
			}
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}

			respondJSON(w, http.StatusOK, order)

		case "delivery":
			var req struct {
				DeliveryAddress string `json:"delivery_address"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			order, err := store.UpdateDelivery(ctx, db, id, actor, req.DeliveryAddress, cfg.Orders.DeliveryEditWindow)
			if err != nil {
				respondError(w, statusForError(err), err.Error())
				return
			}

			respondJSON(w, http.StatusOK, order)

		default:
			respondError(w, http.StatusNotFound, "Unknown order action")
		}
	}
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

package shopapi

// AuthRequest is the body of POST /api/auth.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is the body of a successful POST /api/auth.
type AuthResponse struct {
	Token string `json:"token"`
}

// SendCoinRequest is the body of POST /api/sendCoin.
type SendCoinRequest struct {
	ToUser string `json:"toUser"`
	Amount int64  `json:"amount"`
}

// InventoryItem is one entry of a user's inventory.
type InventoryItem struct {
	Type     string `json:"type"`
	Quantity int64  `json:"quantity"`
}

// ReceivedTransfer is an incoming coin transfer.
type ReceivedTransfer struct {
	FromUser string `json:"fromUser"`
	Amount   int64  `json:"amount"`
}

// SentTransfer is an outgoing coin transfer.
type SentTransfer struct {
	ToUser string `json:"toUser"`
	Amount int64  `json:"amount"`
}

// CoinHistory lists a user's transfers.
type CoinHistory struct {
	Received []ReceivedTransfer `json:"received"`
	Sent     []SentTransfer     `json:"sent"`
}

// InfoResponse is the body of GET /api/info.
type InfoResponse struct {
	Coins       int64           `json:"coins"`
	Inventory   []InventoryItem `json:"inventory"`
	CoinHistory CoinHistory     `json:"coinHistory"`
}

// ErrorResponse is the body the shop returns with non-2xx statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// InfoSchema describes a well-formed GET /api/info body.
const InfoSchema = `{
	"type": "object",
	"required": ["coins", "inventory", "coinHistory"],
	"properties": {
		"coins": { "type": "integer", "minimum": 0 },
		"inventory": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"required": ["type", "quantity"],
				"properties": {
					"type": { "type": "string" },
					"quantity": { "type": "integer", "minimum": 0 }
				}
			}
		},
		"coinHistory": {
			"type": "object",
			"properties": {
				"received": {
					"type": ["array", "null"],
					"items": {
						"type": "object",
						"required": ["fromUser", "amount"]
					}
				},
				"sent": {
					"type": ["array", "null"],
					"items": {
						"type": "object",
						"required": ["toUser", "amount"]
					}
				}
			}
		}
	}
}`

// Item is a merch catalog entry.
type Item struct {
	Name  string
	Price int64
}

// Catalog lists the shop's merch in catalog order.
var Catalog = []Item{
	{"t-shirt", 80},
	{"cup", 20},
	{"book", 50},
	{"pen", 10},
	{"powerbank", 200},
	{"hoody", 300},
	{"umbrella", 200},
	{"socks", 10},
	{"wallet", 50},
	{"pink-hoody", 500},
}

// ItemNames returns the catalog's item names in catalog order.
func ItemNames() []string {
	names := make([]string, len(Catalog))
	for i, item := range Catalog {
		names[i] = item.Name
	}
	return names
}

// LookupItem finds a catalog item by name.
func LookupItem(name string) (Item, bool) {
	for _, item := range Catalog {
		if item.Name == name {
			return item, true
		}
	}
	return Item{}, false
}

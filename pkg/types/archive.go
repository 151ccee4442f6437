package types

// TradeKind distinguishes the two sides of a market trade.
type TradeKind string

const (
	TradePurchase TradeKind = "purchase"
	TradeSale     TradeKind = "sale"
)

// Valid reports whether k is one of the two trade kinds.
func (k TradeKind) Valid() bool {
	return k == TradePurchase || k == TradeSale
}

// LifeEventKind is the closed vocabulary of player lifecycle transitions.
type LifeEventKind string

const (
	LifeSpawn      LifeEventKind = "spawn"
	LifeRespawn    LifeEventKind = "respawn"
	LifeDeath      LifeEventKind = "death"
	LifeConnect    LifeEventKind = "connect"
	LifeDisconnect LifeEventKind = "disconnect"
)

// Valid reports whether k is a known lifecycle kind.
func (k LifeEventKind) Valid() bool {
	switch k {
	case LifeSpawn, LifeRespawn, LifeDeath, LifeConnect, LifeDisconnect:
		return true
	}
	return false
}

// ItemEventKind is the closed vocabulary of inventory-style events.
type ItemEventKind string

const (
	ItemPickup  ItemEventKind = "pickup"
	ItemDrop    ItemEventKind = "drop"
	ItemCraft   ItemEventKind = "craft"
	ItemConsume ItemEventKind = "consume"
	ItemDestroy ItemEventKind = "destroy"
)

// Valid reports whether k is a known item-event kind.
func (k ItemEventKind) Valid() bool {
	switch k {
	case ItemPickup, ItemDrop, ItemCraft, ItemConsume, ItemDestroy:
		return true
	}
	return false
}

// TradeRecord is one archived purchase or sale.
type TradeRecord struct {
	EntityID    string    `json:"entityId"`
	EventTime   string    `json:"eventTime"`
	Kind        TradeKind `json:"kind"`
	TraderName  string    `json:"traderName"`
	ZoneName    string    `json:"zoneName"`
	ItemClass   string    `json:"itemClass"`
	ItemDisplay string    `json:"itemDisplay"`
	Quantity    int64     `json:"quantity"`
	Price       int64     `json:"price"`
	Currency    string    `json:"currency"`

	// ArchiveDate is the logical date stamp of the run that archived this
	// record, independent of EventTime. Format YYYY-MM-DD.
	ArchiveDate string `json:"archiveDate"`
}

// LifeEventRecord is one archived lifecycle transition.
type LifeEventRecord struct {
	EntityID  string        `json:"entityId"`
	EventTime string        `json:"eventTime"`
	Kind      LifeEventKind `json:"kind"`

	// Payload holds serialized kind-specific detail (cause of death,
	// position, etc). Opaque to the store.
	Payload string `json:"payload,omitempty"`

	ArchiveDate string `json:"archiveDate"`
}

// ItemEventRecord is one archived inventory-style event.
type ItemEventRecord struct {
	EntityID    string        `json:"entityId"`
	EventTime   string        `json:"eventTime"`
	Kind        ItemEventKind `json:"kind"`
	ItemClass   string        `json:"itemClass,omitempty"`
	ItemDisplay string        `json:"itemDisplay,omitempty"`
	Quantity    int64         `json:"quantity"`

	// Position where the event occurred, if the producer reported one.
	PosX *float64 `json:"posX,omitempty"`
	PosY *float64 `json:"posY,omitempty"`
	PosZ *float64 `json:"posZ,omitempty"`

	Payload string `json:"payload,omitempty"`

	ArchiveDate string `json:"archiveDate"`
}

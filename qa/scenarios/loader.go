package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/gridmarket/core/model"
)

type OrderDef struct {
	Broker   string   `yaml:"broker"`
	Timeslot int      `yaml:"timeslot"`
	MWh      float64  `yaml:"mwh"`
	Price    *float64 `yaml:"price,omitempty"`
}

func (o OrderDef) ToModel() model.Order {
	return model.Order{Broker: o.Broker, Timeslot: o.Timeslot, MWh: o.MWh, LimitPrice: o.Price}
}

// TariffDef is a flat-rate tariff.
type TariffDef struct {
	ID              int64   `yaml:"id"`
	Broker          string  `yaml:"broker"`
	PowerType       string  `yaml:"power_type"`
	Rate            float64 `yaml:"rate"`
	PeriodicPayment float64 `yaml:"periodic_payment,omitempty"`
	SignupPayment   float64 `yaml:"signup_payment,omitempty"`
	Supersedes      []int64 `yaml:"supersedes,omitempty"`
}

func (d TariffDef) ToModel() model.TariffSpecification {
	pt := model.PowerType(d.PowerType)
	if pt == "" {
		pt = model.Consumption
	}
	return model.TariffSpecification{
		ID:              d.ID,
		Broker:          d.Broker,
		PowerType:       pt,
		PeriodicPayment: d.PeriodicPayment,
		SignupPayment:   d.SignupPayment,
		Rates:           []model.Rate{model.NewRate(d.ID*10+1, d.Rate)},
		Supersedes:      d.Supersedes,
	}
}

type RevokeDef struct {
	Broker   string `yaml:"broker"`
	TariffID int64  `yaml:"tariff_id"`
}

func (r RevokeDef) ToModel() model.TariffRevoke {
	return model.TariffRevoke{Broker: r.Broker, TariffID: r.TariffID}
}

// Step lists the messages brokers send before timeslot Timeslot runs.
type Step struct {
	Timeslot int         `yaml:"timeslot"`
	Orders   []OrderDef  `yaml:"orders,omitempty"`
	Tariffs  []TariffDef `yaml:"tariffs,omitempty"`
	Revokes  []RevokeDef `yaml:"revokes,omitempty"`
}

type TradeDef struct {
	Timeslot int     `yaml:"timeslot"`
	MWh      float64 `yaml:"mwh"`
	Price    float64 `yaml:"price"`
}

type Expected struct {
	Trades   []TradeDef       `yaml:"trades,omitempty"`
	NoTrade  []int            `yaml:"no_trade,omitempty"`
	Tariffs  map[int64]string `yaml:"tariffs,omitempty"`
	Rejected int              `yaml:"rejected"`
}

type Scenario struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Brokers     []string `yaml:"brokers"`
	// SellerMaxMargin overrides the auction's seller margin cap when set.
	SellerMaxMargin *float64 `yaml:"seller_max_margin,omitempty"`
	Steps           []Step   `yaml:"steps"`
	Expected        Expected `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	if sc.Name == "" {
		return fmt.Errorf("scenario has no name")
	}
	for i := 1; i < len(sc.Steps); i++ {
		if sc.Steps[i].Timeslot <= sc.Steps[i-1].Timeslot {
			return fmt.Errorf("step %d: timeslot %d does not advance", i, sc.Steps[i].Timeslot)
		}
	}
	return nil
}

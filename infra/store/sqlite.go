// Package store persists orders and result rows in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openrec/lemd/core/model"
	"github.com/openrec/lemd/core/orders"
)

// SQLiteStore implements orders.Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    organization TEXT,
    mechanism TEXT,
    state TEXT NOT NULL,
    error_kind TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS lem_prices (
    order_id TEXT NOT NULL REFERENCES orders(id),
    datetime TEXT NOT NULL,
    value REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS offers (
    order_id TEXT NOT NULL REFERENCES orders(id),
    datetime TEXT NOT NULL,
    meter_id TEXT NOT NULL,
    amount REAL NOT NULL,
    value REAL NOT NULL,
    type TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS general_milp_outputs (
    order_id TEXT PRIMARY KEY REFERENCES orders(id),
    objective_value REAL NOT NULL,
    milp_status TEXT NOT NULL,
    total_rec_cost REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS individual_costs (
    order_id TEXT NOT NULL REFERENCES orders(id),
    meter_id TEXT NOT NULL,
    individual_cost REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS meter_inputs (
    order_id TEXT NOT NULL REFERENCES orders(id),
    meter_id TEXT NOT NULL,
    datetime TEXT NOT NULL,
    energy_generated REAL NOT NULL,
    energy_consumed REAL NOT NULL,
    buy_tariff REAL NOT NULL,
    sell_tariff REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS meter_outputs (
    order_id TEXT NOT NULL REFERENCES orders(id),
    meter_id TEXT NOT NULL,
    datetime TEXT NOT NULL,
    energy_surplus REAL NOT NULL,
    energy_supplied REAL NOT NULL,
    net_load REAL NOT NULL,
    bess_energy_charged REAL NOT NULL,
    bess_energy_discharged REAL NOT NULL,
    bess_energy_content REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS pool_lem_transactions (
    order_id TEXT NOT NULL REFERENCES orders(id),
    meter_id TEXT NOT NULL,
    datetime TEXT NOT NULL,
    energy_purchased REAL NOT NULL,
    energy_sold REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS bilateral_lem_transactions (
    order_id TEXT NOT NULL REFERENCES orders(id),
    provider_meter_id TEXT NOT NULL,
    receiver_meter_id TEXT NOT NULL,
    datetime TEXT NOT NULL,
    energy REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS pool_self_consumption_tariffs (
    order_id TEXT NOT NULL REFERENCES orders(id),
    datetime TEXT NOT NULL,
    self_consumption_tariff REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS bilateral_self_consumption_tariffs (
    order_id TEXT NOT NULL REFERENCES orders(id),
    datetime TEXT NOT NULL,
    self_consumption_tariff REAL NOT NULL,
    provider_meter_id TEXT NOT NULL,
    receiver_meter_id TEXT NOT NULL
);
`

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// CreateOrder inserts a fresh pending order.
func (s *SQLiteStore) CreateOrder(ctx context.Context, o *model.Order) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (id, kind, organization, mechanism, state, error_kind, message, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, string(o.Kind), string(o.Organization), string(o.Mechanism),
		string(o.State), string(o.ErrKind), o.Message, o.CreatedAt.Unix())
	return err
}

// GetOrder loads one order by id.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, organization, mechanism, state, error_kind, message, created_at
         FROM orders WHERE id = ?`, id)
	var o model.Order
	var kind, org, mech, state, errKind string
	var createdAt int64
	err := row.Scan(&o.ID, &kind, &org, &mech, &state, &errKind, &o.Message, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, orders.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Kind = model.RequestKind(kind)
	o.Organization = model.MarketOrganization(org)
	o.Mechanism = model.PricingMechanism(mech)
	o.State = model.OrderState(state)
	o.ErrKind = model.ErrorKind(errKind)
	o.CreatedAt = unixUTC(createdAt)
	return &o, nil
}

// FailOrder flips a pending order to done-error.
func (s *SQLiteStore) FailOrder(ctx context.Context, id string, kind model.ErrorKind, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET state = ?, error_kind = ?, message = ? WHERE id = ? AND state = ?`,
		string(model.StateDoneError), string(kind), message, id, string(model.StatePending))
	if err != nil {
		return err
	}
	return requireRow(res)
}

// CompleteOrder writes all result rows and flips the order to done-ok in one
// transaction.
func (s *SQLiteStore) CompleteOrder(ctx context.Context, id string, rows *model.ResultRows) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertRows(ctx, tx, id, rows); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET state = ? WHERE id = ? AND state = ?`,
		string(model.StateDoneOK), id, string(model.StatePending))
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRows(ctx context.Context, tx *sql.Tx, id string, rows *model.ResultRows) error {
	for _, r := range rows.Prices {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lem_prices (order_id, datetime, value) VALUES (?, ?, ?)`,
			id, r.Datetime, r.Value); err != nil {
			return err
		}
	}
	for _, r := range rows.Offers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO offers (order_id, datetime, meter_id, amount, value, type) VALUES (?, ?, ?, ?, ?, ?)`,
			id, r.Datetime, r.MeterID, r.Amount, r.Value, r.Type); err != nil {
			return err
		}
	}
	if rows.General != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO general_milp_outputs (order_id, objective_value, milp_status, total_rec_cost) VALUES (?, ?, ?, ?)`,
			id, rows.General.ObjectiveValue, rows.General.MILPStatus, rows.General.TotalRECCost); err != nil {
			return err
		}
	}
	for _, r := range rows.IndividualCosts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO individual_costs (order_id, meter_id, individual_cost) VALUES (?, ?, ?)`,
			id, r.MeterID, r.IndividualCost); err != nil {
			return err
		}
	}
	for _, r := range rows.MeterInputs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meter_inputs (order_id, meter_id, datetime, energy_generated, energy_consumed, buy_tariff, sell_tariff)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, r.MeterID, r.Datetime, r.EnergyGenerated, r.EnergyConsumed, r.BuyTariff, r.SellTariff); err != nil {
			return err
		}
	}
	for _, r := range rows.MeterOutputs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meter_outputs (order_id, meter_id, datetime, energy_surplus, energy_supplied, net_load, bess_energy_charged, bess_energy_discharged, bess_energy_content)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, r.MeterID, r.Datetime, r.EnergySurplus, r.EnergySupplied, r.NetLoad,
			r.BESSEnergyCharged, r.BESSEnergyDischarged, r.BESSEnergyContent); err != nil {
			return err
		}
	}
	for _, r := range rows.PoolTransactions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pool_lem_transactions (order_id, meter_id, datetime, energy_purchased, energy_sold) VALUES (?, ?, ?, ?, ?)`,
			id, r.MeterID, r.Datetime, r.EnergyPurchased, r.EnergySold); err != nil {
			return err
		}
	}
	for _, r := range rows.BilateralTransactions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bilateral_lem_transactions (order_id, provider_meter_id, receiver_meter_id, datetime, energy) VALUES (?, ?, ?, ?, ?)`,
			id, r.ProviderMeterID, r.ReceiverMeterID, r.Datetime, r.Energy); err != nil {
			return err
		}
	}
	for _, r := range rows.PoolSCTariffs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pool_self_consumption_tariffs (order_id, datetime, self_consumption_tariff) VALUES (?, ?, ?)`,
			id, r.Datetime, r.SelfConsumptionTariff); err != nil {
			return err
		}
	}
	for _, r := range rows.BilateralSCTariffs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bilateral_self_consumption_tariffs (order_id, datetime, self_consumption_tariff, provider_meter_id, receiver_meter_id)
             VALUES (?, ?, ?, ?, ?)`,
			id, r.Datetime, r.SelfConsumptionTariff, r.ProviderMeterID, r.ReceiverMeterID); err != nil {
			return err
		}
	}
	return nil
}

// ResultRows loads every row family owned by an order.
func (s *SQLiteStore) ResultRows(ctx context.Context, id string) (*model.ResultRows, error) {
	out := &model.ResultRows{}

	err := s.query(ctx, `SELECT datetime, value FROM lem_prices WHERE order_id = ?`, id, func(rows *sql.Rows) error {
		var r model.PriceRow
		if err := rows.Scan(&r.Datetime, &r.Value); err != nil {
			return err
		}
		out.Prices = append(out.Prices, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = s.query(ctx, `SELECT datetime, meter_id, amount, value, type FROM offers WHERE order_id = ?`, id, func(rows *sql.Rows) error {
		var r model.OfferRow
		if err := rows.Scan(&r.Datetime, &r.MeterID, &r.Amount, &r.Value, &r.Type); err != nil {
			return err
		}
		out.Offers = append(out.Offers, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT objective_value, milp_status, total_rec_cost FROM general_milp_outputs WHERE order_id = ?`, id)
	var g model.GeneralRow
	switch err := row.Scan(&g.ObjectiveValue, &g.MILPStatus, &g.TotalRECCost); {
	case err == nil:
		out.General = &g
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, err
	}

	err = s.query(ctx, `SELECT meter_id, individual_cost FROM individual_costs WHERE order_id = ?`, id, func(rows *sql.Rows) error {
		var r model.IndividualCostRow
		if err := rows.Scan(&r.MeterID, &r.IndividualCost); err != nil {
			return err
		}
		out.IndividualCosts = append(out.IndividualCosts, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = s.query(ctx, `SELECT meter_id, datetime, energy_generated, energy_consumed, buy_tariff, sell_tariff FROM meter_inputs WHERE order_id = ?`, id, func(rows *sql.Rows) error {
		var r model.MeterInputRow
		if err := rows.Scan(&r.MeterID, &r.Datetime, &r.EnergyGenerated, &r.EnergyConsumed, &r.BuyTariff, &r.SellTariff); err != nil {
			return err
		}
		out.MeterInputs = append(out.MeterInputs, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = s.query(ctx, `SELECT meter_id, datetime, energy_surplus, energy_supplied, net_load, bess_energy_charged, bess_energy_discharged, bess_energy_content FROM meter_outputs WHERE order_id = ?`, id, func(rows *sql.Rows) error {
		var r model.MeterOutputRow
		if err := rows.Scan(&r.MeterID, &r.Datetime, &r.EnergySurplus, &r.EnergySupplied, &r.NetLoad, &r.BESSEnergyCharged, &r.BESSEnergyDischarged, &r.BESSEnergyContent); err != nil {
			return err
		}
		out.MeterOutputs = append(out.MeterOutputs, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = s.query(ctx, `SELECT meter_id, datetime, energy_purchased, energy_sold FROM pool_lem_transactions WHERE order_id = ?`, id, func(rows *sql.Rows) error {
		var r model.PoolTransactionRow
		if err := rows.Scan(&r.MeterID, &r.Datetime, &r.EnergyPurchased, &r.EnergySold); err != nil {
			return err
		}
		out.PoolTransactions = append(out.PoolTransactions, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = s.query(ctx, `SELECT provider_meter_id, receiver_meter_id, datetime, energy FROM bilateral_lem_transactions WHERE order_id = ?`, id, func(rows *sql.Rows) error {
		var r model.BilateralTransactionRow
		if err := rows.Scan(&r.ProviderMeterID, &r.ReceiverMeterID, &r.Datetime, &r.Energy); err != nil {
			return err
		}
		out.BilateralTransactions = append(out.BilateralTransactions, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = s.query(ctx, `SELECT datetime, self_consumption_tariff FROM pool_self_consumption_tariffs WHERE order_id = ?`, id, func(rows *sql.Rows) error {
		var r model.PoolSCTariffRow
		if err := rows.Scan(&r.Datetime, &r.SelfConsumptionTariff); err != nil {
			return err
		}
		out.PoolSCTariffs = append(out.PoolSCTariffs, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = s.query(ctx, `SELECT datetime, self_consumption_tariff, provider_meter_id, receiver_meter_id FROM bilateral_self_consumption_tariffs WHERE order_id = ?`, id, func(rows *sql.Rows) error {
		var r model.BilateralSCTariffRow
		if err := rows.Scan(&r.Datetime, &r.SelfConsumptionTariff, &r.ProviderMeterID, &r.ReceiverMeterID); err != nil {
			return err
		}
		out.BilateralSCTariffs = append(out.BilateralSCTariffs, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) query(ctx context.Context, q, id string, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, q, id)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func unixUTC(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return orders.ErrNotFound
	}
	return nil
}

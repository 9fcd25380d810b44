package models

import "fmt"

// PlanType — тип тарифа.
type PlanType string

const (
	// PlanMonthly — помесячная оплата.
	PlanMonthly PlanType = "monthly"
	// PlanAnnual — годовая оплата.
	PlanAnnual PlanType = "annual"
)

// ParsePlanType проверяет строку и возвращает тариф.
func ParsePlanType(s string) (PlanType, error) {
	switch PlanType(s) {
	case PlanMonthly, PlanAnnual:
		return PlanType(s), nil
	}
	return "", fmt.Errorf("unknown plan type %q", s)
}

// Plan — позиция каталога тарифов. Price хранится в минимальных единицах валюты (сентаво).
type Plan struct {
	Type     PlanType `json:"type"`
	Title    string   `json:"title"`
	Price    int64    `json:"price"`
	Currency string   `json:"currency"`
}

// Catalog — доступные тарифы.
type Catalog map[PlanType]Plan

// Lookup возвращает тариф из каталога.
func (c Catalog) Lookup(t PlanType) (Plan, bool) {
	p, ok := c[t]
	return p, ok
}

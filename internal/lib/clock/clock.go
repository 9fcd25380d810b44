// Package clock абстрагирует получение текущего времени, чтобы в тестах
// можно было подставлять фиксированный момент.
package clock

import "time"

// Clock возвращает текущее время.
type Clock interface {
	Now() time.Time
}

// Real — системные часы, всегда в UTC.
type Real struct{}

// Now возвращает текущее время в UTC.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Fixed всегда возвращает один и тот же момент.
type Fixed time.Time

// Now возвращает зафиксированный момент.
func (f Fixed) Now() time.Time {
	return time.Time(f)
}

// Func адаптирует обычную функцию к интерфейсу Clock.
type Func func() time.Time

// Now вызывает обёрнутую функцию.
func (f Func) Now() time.Time {
	return f()
}

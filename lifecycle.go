package tcpexchange

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidTransition возвращается при недопустимом переходе состояния
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ExchangeState представляет состояние одного обмена запрос/ответ.
// Каждое соединение живёт ровно один обмен: открыто -> сообщение
// передано -> подтверждение передано -> закрыто
type ExchangeState int

const (
	// IDLE - обмен ещё не начат
	IDLE ExchangeState = iota
	// LISTENING - слушающий сокет привязан, ждём входящие соединения
	LISTENING
	// OPEN - соединение установлено, данные ещё не передавались
	OPEN
	// REQUEST_SENT - запрашивающая сторона отправила сообщение
	REQUEST_SENT
	// REQUEST_READ - отвечающая сторона прочитала сообщение
	REQUEST_READ
	// RESPONSE_SENT - отвечающая сторона отправила подтверждение
	RESPONSE_SENT
	// RESPONSE_READ - запрашивающая сторона прочитала подтверждение
	RESPONSE_READ
	// CLOSED - обмен завершён, соединение закрыто
	CLOSED
	// FAILED - обмен прерван ошибкой
	FAILED
)

// String возвращает строковое представление состояния
func (s ExchangeState) String() string {
	switch s {
	case IDLE:
		return "IDLE"
	case LISTENING:
		return "LISTENING"
	case OPEN:
		return "OPEN"
	case REQUEST_SENT:
		return "REQUEST_SENT"
	case REQUEST_READ:
		return "REQUEST_READ"
	case RESPONSE_SENT:
		return "RESPONSE_SENT"
	case RESPONSE_READ:
		return "RESPONSE_READ"
	case CLOSED:
		return "CLOSED"
	case FAILED:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ExchangeEvent представляет событие жизненного цикла обмена
type ExchangeEvent int

const (
	// BIND - слушающий сокет привязан к адресу (отвечающая сторона)
	BIND ExchangeEvent = iota
	// ACCEPT - входящее соединение принято (отвечающая сторона)
	ACCEPT
	// DIAL - исходящее соединение установлено (запрашивающая сторона)
	DIAL
	// SEND_REQUEST - сообщение записано в сокет
	SEND_REQUEST
	// READ_REQUEST - сообщение прочитано из сокета
	READ_REQUEST
	// SEND_RESPONSE - подтверждение записано в сокет
	SEND_RESPONSE
	// READ_RESPONSE - подтверждение прочитано из сокета
	READ_RESPONSE
	// CLOSE - соединение закрыто локально
	CLOSE
	// FAIL - ошибка ввода-вывода или таймаут
	FAIL
)

// String возвращает строковое представление события
func (e ExchangeEvent) String() string {
	switch e {
	case BIND:
		return "BIND"
	case ACCEPT:
		return "ACCEPT"
	case DIAL:
		return "DIAL"
	case SEND_REQUEST:
		return "SEND_REQUEST"
	case READ_REQUEST:
		return "READ_REQUEST"
	case SEND_RESPONSE:
		return "SEND_RESPONSE"
	case READ_RESPONSE:
		return "READ_RESPONSE"
	case CLOSE:
		return "CLOSE"
	case FAIL:
		return "FAIL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", e)
	}
}

// StateChangeCallback вызывается при изменении состояния
type StateChangeCallback func(oldState, newState ExchangeState, event ExchangeEvent)

// StateTransition представляет запись о переходе состояния
type StateTransition struct {
	FromState ExchangeState
	ToState   ExchangeState
	Event     ExchangeEvent
}

// ExchangeStateMachine отслеживает жизненный цикл одного обмена.
// История переходов - это структурная замена построчной "симуляции слоёв":
// каждый реальный шаг протокола фиксируется как переход, а не как printf
type ExchangeStateMachine struct {
	currentState      ExchangeState
	mu                sync.RWMutex
	onStateChange     StateChangeCallback
	transitionHistory []StateTransition
	maxHistorySize    int
}

// NewExchangeStateMachine создаёт новую машину состояний обмена
func NewExchangeStateMachine() *ExchangeStateMachine {
	return &ExchangeStateMachine{
		currentState:      IDLE,
		transitionHistory: make([]StateTransition, 0),
		maxHistorySize:    32,
	}
}

// SetStateChangeCallback устанавливает callback для изменения состояния
func (sm *ExchangeStateMachine) SetStateChangeCallback(cb StateChangeCallback) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onStateChange = cb
}

// GetState возвращает текущее состояние
func (sm *ExchangeStateMachine) GetState() ExchangeState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// ProcessEvent обрабатывает событие и изменяет состояние
func (sm *ExchangeStateMachine) ProcessEvent(event ExchangeEvent) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	oldState := sm.currentState
	newState, err := sm.transition(sm.currentState, event)
	if err != nil {
		return err
	}

	sm.currentState = newState

	sm.addToHistory(StateTransition{
		FromState: oldState,
		ToState:   newState,
		Event:     event,
	})

	if sm.onStateChange != nil {
		sm.onStateChange(oldState, newState, event)
	}

	return nil
}

// transition определяет переходы между состояниями
func (sm *ExchangeStateMachine) transition(state ExchangeState, event ExchangeEvent) (ExchangeState, error) {
	// FAIL допустим из любого незавершённого состояния
	if event == FAIL {
		switch state {
		case CLOSED, FAILED:
		default:
			return FAILED, nil
		}
	}

	switch state {
	case IDLE:
		switch event {
		case BIND:
			return LISTENING, nil
		case ACCEPT:
			return OPEN, nil
		case DIAL:
			return OPEN, nil
		}

	case LISTENING:
		switch event {
		case CLOSE:
			return CLOSED, nil
		}

	case OPEN:
		switch event {
		case SEND_REQUEST:
			return REQUEST_SENT, nil
		case READ_REQUEST:
			return REQUEST_READ, nil
		case CLOSE:
			return CLOSED, nil
		}

	case REQUEST_SENT:
		switch event {
		case READ_RESPONSE:
			return RESPONSE_READ, nil
		case CLOSE:
			return CLOSED, nil
		}

	case REQUEST_READ:
		switch event {
		case SEND_RESPONSE:
			return RESPONSE_SENT, nil
		case CLOSE:
			return CLOSED, nil
		}

	case RESPONSE_SENT:
		switch event {
		case CLOSE:
			return CLOSED, nil
		}

	case RESPONSE_READ:
		switch event {
		case CLOSE:
			return CLOSED, nil
		}

	case FAILED:
		// Ресурсы освобождаются и после ошибки
		switch event {
		case CLOSE:
			return CLOSED, nil
		}
	}

	return state, fmt.Errorf("%w: cannot transition from %s on event %s",
		ErrInvalidTransition, state, event)
}

// addToHistory добавляет переход в историю
func (sm *ExchangeStateMachine) addToHistory(transition StateTransition) {
	sm.transitionHistory = append(sm.transitionHistory, transition)

	// Ограничиваем размер истории
	if len(sm.transitionHistory) > sm.maxHistorySize {
		sm.transitionHistory = sm.transitionHistory[1:]
	}
}

// GetHistory возвращает историю переходов
func (sm *ExchangeStateMachine) GetHistory() []StateTransition {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	history := make([]StateTransition, len(sm.transitionHistory))
	copy(history, sm.transitionHistory)
	return history
}

// Reset сбрасывает машину состояний в начальное состояние
func (sm *ExchangeStateMachine) Reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.currentState = IDLE
	sm.transitionHistory = make([]StateTransition, 0)
}

// IsTerminal проверяет, завершён ли обмен
func (sm *ExchangeStateMachine) IsTerminal() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState == CLOSED || sm.currentState == FAILED
}

// IsFailed проверяет, прерван ли обмен ошибкой
func (sm *ExchangeStateMachine) IsFailed() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState == FAILED
}

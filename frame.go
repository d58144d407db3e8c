package tcpexchange

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultMaxMessageSize - максимальный размер сообщения по умолчанию (4 КиБ)
	DefaultMaxMessageSize = 4096

	// frameHeaderSize - размер заголовка кадра: длина полезной нагрузки,
	// 4 байта в сетевом порядке (big-endian)
	frameHeaderSize = 4

	// ackPadding - запас на префикс и суффикс подтверждения
	// ("ACK: " + сообщение + " (NNNN bytes)")
	ackPadding = 32
)

var (
	// ErrFrameTooLarge возвращается, если полезная нагрузка превышает лимит.
	// Слишком большие сообщения отклоняются, а не обрезаются
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
	// ErrInvalidLimit возвращается при недопустимом лимите кадра
	ErrInvalidLimit = errors.New("frame limit must be greater than zero")
)

// WriteFrame записывает один кадр: 4 байта длины (big-endian) и полезную
// нагрузку. Заголовок и данные уходят одним вызовом Write, чтобы кадр не
// разрывался между системными вызовами. Возвращает количество байт,
// фактически записанных на провод.
//
// Формат симметричен для запроса и ответа.
func WriteFrame(w io.Writer, payload []byte, limit int) (int, error) {
	if limit <= 0 {
		return 0, ErrInvalidLimit
	}
	if len(payload) > limit {
		return 0, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(payload), limit)
	}

	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[:frameHeaderSize], uint32(len(payload)))
	copy(buf[frameHeaderSize:], payload)

	n, err := w.Write(buf)
	if err != nil {
		return n, fmt.Errorf("failed to write frame (%d of %d bytes sent): %w", n, len(buf), err)
	}

	return n, nil
}

// ReadFrame читает один кадр целиком: сначала заголовок длины, затем ровно
// столько байт полезной нагрузки, сколько объявлено. Кадр нулевой длины
// допустим - пустое сообщение тоже сообщение.
//
// Если объявленная длина превышает limit, кадр отклоняется без чтения
// данных - так один плохой пир не заставит нас выделить гигабайт памяти.
func ReadFrame(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	header := make([]byte, frameHeaderSize)
	if n, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read frame header (%d of %d bytes): %w", n, frameHeaderSize, err)
	}

	length := binary.BigEndian.Uint32(header)
	if length == 0 {
		return []byte{}, nil
	}
	if length > uint32(limit) {
		return nil, fmt.Errorf("%w: declared %d > %d bytes", ErrFrameTooLarge, length, limit)
	}

	payload := make([]byte, length)
	if n, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read frame payload (%d of %d bytes): %w", n, length, err)
	}

	return payload, nil
}

// BuildAck формирует детерминированное подтверждение для полученного
// сообщения: "ACK: <сообщение> (<длина> bytes)". Длина считается в байтах
// исходного сообщения
func BuildAck(message []byte) []byte {
	return []byte(fmt.Sprintf("ACK: %s (%d bytes)", message, len(message)))
}

// AckLimit возвращает лимит кадра для подтверждения: подтверждение на
// сообщение максимального размера длиннее самого сообщения на префикс и
// суффикс, поэтому принимающая сторона должна читать ответ с этим лимитом
func AckLimit(maxMessageSize int) int {
	return maxMessageSize + ackPadding
}

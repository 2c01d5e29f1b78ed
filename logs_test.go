package streamkit_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gokit/streamkit"
)

func TestGetLogEvent(t *testing.T) {
	t.Run("basic fields", func(t *testing.T) {
		event := streamkit.LogMsg("My log")
		event.String("name", "thunder")
		event.Int("id", 234)
		assert.Equal(t, "{\"message\": \"My log\", \"name\": \"thunder\", \"id\": 234}", event.Write().Message())
	})

	t.Run("with JSON fields", func(t *testing.T) {
		event := streamkit.LogMsg("My log")
		event.String("name", "thunder")
		event.Int("id", 234)
		event.ObjectJSON("data", map[string]interface{}{"id": 23})
		assert.Equal(t, "{\"message\": \"My log\", \"name\": \"thunder\", \"id\": 234, \"data\": {\"id\":23}}", event.Write().Message())
	})

	t.Run("with Entry fields", func(t *testing.T) {
		event := streamkit.LogMsg("My log")
		event.String("name", "thunder")
		event.Int("id", 234)
		event.Object("data", func(event streamkit.LogEvent) {
			event.Int("id", 23)
		})
		assert.Equal(t, "{\"message\": \"My log\", \"name\": \"thunder\", \"id\": 234, \"data\": {\"id\": 23}}", event.Write().Message())
	})

	t.Run("with bytes fields", func(t *testing.T) {
		event := streamkit.LogMsg("My log")
		event.String("name", "thunder")
		event.Int("id", 234)
		event.Bytes("data", []byte("{\"id\": 23}"))
		assert.Equal(t, "{\"message\": \"My log\", \"name\": \"thunder\", \"id\": 234, \"data\": {\"id\": 23}}", event.Write().Message())
	})

	t.Run("with error fields", func(t *testing.T) {
		event := streamkit.LogMsg("My log")
		event.Err("error", fmt.Errorf("bad day"))
		event.Err("cause", nil)
		assert.Equal(t, "{\"message\": \"My log\", \"error\": \"bad day\", \"cause\": \"\"}", event.Write().Message())
	})

	t.Run("with duration fields", func(t *testing.T) {
		event := streamkit.LogMsg("My log")
		event.Dur("took", 1500*time.Millisecond)
		assert.Equal(t, "{\"message\": \"My log\", \"took\": \"1.5s\"}", event.Write().Message())
	})

	t.Run("using context fields", func(t *testing.T) {
		event := streamkit.LogMsgWithContext("My log", "data", nil)
		event.String("name", "thunder")
		event.Int("id", 234)
		assert.Equal(t, "{\"message\": \"My log\", \"data\": {\"name\": \"thunder\", \"id\": 234}}", event.Write().Message())
	})

	t.Run("using context fields with hook", func(t *testing.T) {
		event := streamkit.LogMsgWithContext("My log", "data", func(event streamkit.LogEvent) {
			event.Bool("w", true)
		})

		event.String("name", "thunder")
		event.Int("id", 234)
		assert.Equal(t, "{\"message\": \"My log\", \"w\": true, \"data\": {\"name\": \"thunder\", \"id\": 234}}", event.Write().Message())
	})
}

func TestContextLogFn(t *testing.T) {
	var got string
	logs := streamkit.ContextLogFn{Fn: func(name string) streamkit.Logs {
		got = name
		return streamkit.DrainLog{}
	}}

	logs.Get("pipeline").Emit(streamkit.INFO, streamkit.Message("ignored"))
	assert.Equal(t, "pipeline", got)
}

func BenchmarkGetLogEvent(b *testing.B) {
	b.ResetTimer()
	b.ReportAllocs()

	b.Run("basic fields", func(b *testing.B) {
		b.ResetTimer()
		b.ReportAllocs()

		for i := b.N; i > 0; i-- {
			event := streamkit.LogMsg("My log")
			event.String("name", "thunder")
			event.Int("id", 234)
			event.Write().Message()
		}
	})

	b.Run("with JSON fields", func(b *testing.B) {
		b.ResetTimer()
		b.ReportAllocs()

		for i := b.N; i > 0; i-- {
			event := streamkit.LogMsg("My log")
			event.String("name", "thunder")
			event.Int("id", 234)
			event.ObjectJSON("data", map[string]interface{}{"id": 23})
			event.Write().Message()
		}
	})

	b.Run("with Entry fields", func(b *testing.B) {
		b.ResetTimer()
		b.ReportAllocs()

		for i := b.N; i > 0; i-- {
			event := streamkit.LogMsg("My log")
			event.String("name", "thunder")
			event.Int("id", 234)
			event.Object("data", func(event streamkit.LogEvent) {
				event.Int("id", 23)
			})
			event.Write().Message()
		}
	})
}

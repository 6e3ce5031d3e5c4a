// Copyright 2024-2026 Aiku AI

package markup_test

import (
	"fmt"

	"maunium.net/go/mautrix/event"

	"github.com/aiku/affiliate-relay/pkg/markup"
)

func ExampleToMarkdown() {
	content := &event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          "Cupom https://s.shopee.com.br/A",
		Format:        event.FormatHTML,
		FormattedBody: `<p><strong>Cupom</strong> <a href="https://s.shopee.com.br/A">https://s.shopee.com.br/A</a></p>`,
	}
	fmt.Println(markup.ToMarkdown(content))
	// Output: **Cupom** https://s.shopee.com.br/A
}

func ExampleToHTML() {
	fmt.Println(markup.ToHTML("**Cupom** https://s.shopee.com.br/A").FormattedBody)
	// Output: <strong>Cupom</strong> <a href="https://s.shopee.com.br/A">https://s.shopee.com.br/A</a>
}

// Package receival implements the receival generator: for every
// layer that receives records, it emits the channel-id plan, the
// forward/intra/down routing entries, and the dispatch handlers keyed by
// in_record_uid that run the layer's analyses and send the record on.
package receival

import (
	"encoding/xml"
	"sort"

	"github.com/viant/weaver/internal/channelid"
	"github.com/viant/weaver/internal/layer"
	"github.com/viant/weaver/internal/solver"
)

// ChannelPlan is the channel-id plan block of one layer's document:
// where in the id words this layer's sub-field sits, how wide each
// sub-field is, and where the pre/post halves of the dispatch range
// start. The leaf sub-field's high bit distinguishes post-events, so the
// post half of the range begins at 2^(bits_per_channel-1).
type ChannelPlan struct {
	FromLevel      int    `xml:"from_level,attr"`
	NumLevels      int    `xml:"num_levels,attr"`
	NumWords       int    `xml:"num_words,attr"`
	BitsPerChannel int    `xml:"bits_per_channel,attr"`
	BaseArgName    string `xml:"base_arg_name,attr"`
	StartIndexPre  int    `xml:"start_index_pre,attr"`
	StartIndexPost int    `xml:"start_index_post,attr"`
}

// AnalysisRef is one analysis a dispatch handler runs, in intra-call
// order.
type AnalysisRef struct {
	Name      string `xml:"name,attr"`
	MappingID int    `xml:"mapping_id,attr"`
}

// Handler is one in_record_uid dispatch entry: deserialize the record's
// fields, run the analyses, then let the layer's routing entries carry
// the record on.
type Handler struct {
	RecordUID uint64        `xml:"record_uid,attr"`
	Call      string        `xml:"call,attr"`
	Order     string        `xml:"order,attr"`
	Fields    []string      `xml:"field"`
	Analyses  []AnalysisRef `xml:"analysis,omitempty"`
}

// Routing is one of the layer's outgoing directions: the forward function
// (next hop toward the front-end), the intra function (same-layer
// delivery), or the down function (application-ward delivery).
type Routing struct {
	Kind     string `xml:"kind,attr"` // "forward", "intra", "down"
	ToLevel  int    `xml:"to_level,attr"`
	Strategy string `xml:"strategy,attr,omitempty"`
}

// Document is one layer's receival generator input.
type Document struct {
	XMLName     xml.Name    `xml:"receival"`
	Layer       int         `xml:"layer,attr"`
	ChannelPlan ChannelPlan `xml:"channel_plan"`
	Routings    []Routing   `xml:"routings>routing,omitempty"`
	Forward     []Handler   `xml:"forward>handler,omitempty"`
	Intra       []Handler   `xml:"intra>handler,omitempty"`
	Down        []Handler   `xml:"down>handler,omitempty"`
}

// Generator builds receival documents from solved call properties.
type Generator struct {
	plan  channelid.Plan
	graph *layer.Graph
}

// New creates a Generator bound to the overlay's channel-id plan and its
// reduced layer tree.
func New(plan channelid.Plan, g *layer.Graph) *Generator {
	return &Generator{plan: plan, graph: g}
}

// Generate produces one Document per layer that needs to receive at
// least one (call, order), splitting the dispatch table into forward
// (normal upward flow), intra (wrap_across flow) and down (wrap_down
// flow) by the caller-supplied call sets.
func (g *Generator) Generate(props []*solver.CallProperties, wrapDown, wrapAcross map[string]bool) []Document {
	byLayer := map[int][]*solver.CallProperties{}
	for _, p := range props {
		if !p.NeedsReceival {
			continue
		}
		byLayer[p.Layer] = append(byLayer[p.Layer], p)
	}

	var docs []Document
	for layerOrder, list := range byLayer {
		doc := Document{
			Layer:       layerOrder,
			ChannelPlan: g.channelPlan(layerOrder),
			Routings:    g.routings(layerOrder),
		}
		for _, p := range list {
			h := Handler{RecordUID: p.InRecordUID, Call: p.Call, Order: string(p.Order), Fields: p.ArgsToReceive.Keys()}
			for _, a := range p.AnalysesToExecute {
				h.Analyses = append(h.Analyses, AnalysisRef{Name: a.AnalysisName, MappingID: a.MappingID})
			}
			switch {
			case wrapDown[p.Call]:
				doc.Down = append(doc.Down, h)
			case wrapAcross[p.Call]:
				doc.Intra = append(doc.Intra, h)
			default:
				doc.Forward = append(doc.Forward, h)
			}
		}
		sortHandlers(doc.Forward)
		sortHandlers(doc.Intra)
		sortHandlers(doc.Down)
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Layer < docs[j].Layer })
	return docs
}

func (g *Generator) channelPlan(layerOrder int) ChannelPlan {
	return ChannelPlan{
		FromLevel:      layerOrder,
		NumLevels:      g.plan.Depth + 1,
		NumWords:       g.plan.NumWords,
		BitsPerChannel: g.plan.BitsPerSubID,
		BaseArgName:    "weaver_channel_id",
		StartIndexPre:  0,
		StartIndexPost: 1 << uint(g.plan.BitsPerSubID-1),
	}
}

// routings derives the layer's forward/intra/down functions from its
// edges on the reduced tree.
func (g *Generator) routings(layerOrder int) []Routing {
	l, ok := g.graph.Layer(layerOrder)
	if !ok {
		return nil
	}
	var out []Routing
	for _, e := range l.OutEdges {
		out = append(out, Routing{Kind: "forward", ToLevel: e.To, Strategy: e.Strategy})
	}
	if l.IntraComm != "" {
		out = append(out, Routing{Kind: "intra", ToLevel: layerOrder, Strategy: l.IntraComm})
	}
	for _, e := range l.InEdges {
		out = append(out, Routing{Kind: "down", ToLevel: e.From, Strategy: e.Strategy})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ToLevel < out[j].ToLevel
	})
	return out
}

func sortHandlers(h []Handler) {
	sort.Slice(h, func(i, j int) bool {
		if h[i].RecordUID != h[j].RecordUID {
			return h[i].RecordUID < h[j].RecordUID
		}
		if h[i].Call != h[j].Call {
			return h[i].Call < h[j].Call
		}
		return h[i].Order < h[j].Order
	})
}

// Render marshals docs as an indented XML document.
func Render(docs []Document) ([]byte, error) {
	type receivalSet struct {
		XMLName xml.Name   `xml:"receivals"`
		Items   []Document `xml:"receival"`
	}
	return xml.MarshalIndent(receivalSet{Items: docs}, "", "  ")
}

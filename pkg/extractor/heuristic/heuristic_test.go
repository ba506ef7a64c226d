package heuristic_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/omnii-ai/brainmem/pkg/extractor/heuristic"
)

func TestHeuristicAnalyzer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Heuristic Analyzer Suite")
}

var _ = Describe("Analyzer", func() {
	var (
		ctx      context.Context
		analyzer *heuristic.Analyzer
	)

	BeforeEach(func() {
		ctx = context.Background()
		analyzer = heuristic.NewAnalyzer()
	})

	It("classifies questions by trailing question mark", func() {
		a, err := analyzer.Analyze(ctx, "is the dentist open tomorrow?")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Intent).To(Equal("question"))
	})

	It("classifies scheduling language", func() {
		a, err := analyzer.Analyze(ctx, "remind me tomorrow morning")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Intent).To(Equal("schedule"))
	})

	It("defaults to statement", func() {
		a, err := analyzer.Analyze(ctx, "the meeting went fine")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Intent).To(Equal("statement"))
	})

	It("scores sentiment from word polarity", func() {
		pos, err := analyzer.Analyze(ctx, "thanks, this is great")
		Expect(err).NotTo(HaveOccurred())
		Expect(pos.Sentiment).To(BeNumerically(">", 0))

		neg, err := analyzer.Analyze(ctx, "this is terrible and broken")
		Expect(err).NotTo(HaveOccurred())
		Expect(neg.Sentiment).To(BeNumerically("<", 0))
	})

	It("keeps sentiment within [-1, 1]", func() {
		a, err := analyzer.Analyze(ctx, "great great great love love awesome perfect happy")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Sentiment).To(BeNumerically("<=", 1))
	})

	It("surfaces capitalized words as concepts", func() {
		a, err := analyzer.Analyze(ctx, "call Alice about the Denver trip")
		Expect(err).NotTo(HaveOccurred())

		names := make([]string, 0, len(a.Concepts))
		for _, c := range a.Concepts {
			names = append(names, c.Name)
		}
		Expect(names).To(ContainElement("alice"))
		Expect(names).To(ContainElement("denver"))
	})

	It("drops single lowercase occurrences as noise", func() {
		a, err := analyzer.Analyze(ctx, "went walking yesterday")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Concepts).To(BeEmpty())
	})

	It("raises confidence with repetition", func() {
		a, err := analyzer.Analyze(ctx, "dentist dentist dentist")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Concepts).To(HaveLen(1))
		Expect(a.Concepts[0].Confidence).To(BeNumerically(">", 0.5))
	})
})

var _ = Describe("ImportanceFromLength", func() {
	It("grows with content length and saturates", func() {
		short := heuristic.ImportanceFromLength("hi")
		long := heuristic.ImportanceFromLength(string(make([]byte, 1000)))

		Expect(short).To(BeNumerically(">", 0))
		Expect(long).To(BeNumerically(">", short))
		Expect(long).To(BeNumerically("<=", 1))
	})
})

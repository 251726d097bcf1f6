// Command specmerge merges simulation spec fragments in command line order
// and prints the resulting spec with every input path resolved.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pthm-cable/weathering/builder"
)

func main() {
	var fragments []builder.Fragment
	var basePaths []string
	flag.Func("spec", "Inline YAML fragment (repeatable)", func(s string) error {
		fragments = append(fragments, builder.Fragment{Inline: true, Content: s})
		return nil
	})
	flag.Func("spec-file", "Fragment file (repeatable)", func(s string) error {
		fragments = append(fragments, builder.Fragment{Content: s})
		return nil
	})
	flag.Func("base", "Additional directory to resolve inputs against (repeatable)", func(s string) error {
		basePaths = append(basePaths, s)
		return nil
	})
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-spec yaml | -spec-file spec.yml ...] [spec.yml ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	for _, arg := range flag.Args() {
		fragments = append(fragments, builder.Fragment{Content: arg})
	}

	b, err := builder.New(nil, time.Now())
	if err != nil {
		fail(err)
	}
	for _, dir := range basePaths {
		if err := b.AddBasePath(dir); err != nil {
			fail(err)
		}
	}
	if err := b.AppendFragments(fragments); err != nil {
		fail(err)
	}

	s, err := b.ResolvedSpec()
	if err != nil {
		fail(err)
	}
	if err := s.WriteYAML(os.Stdout); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "specmerge: %v\n", err)
	os.Exit(1)
}

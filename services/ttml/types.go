package ttml

import "encoding/xml"

// document is the subset of a TTML file the parser reads
type document struct {
	XMLName      xml.Name `xml:"tt"`
	Timing       string   `xml:"timing,attr"`
	ITunesTiming string   `xml:"http://music.apple.com/lyric-ttml-internal timing,attr"`
	Lang         string   `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	Title        string   `xml:"head>metadata>title"`
	Body         struct {
		Lang string    `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
		Divs []section `xml:"div"`
	} `xml:"body"`
}

// section is a <div>, usually a verse or chorus
type section struct {
	SongPart   string      `xml:"songPart,attr"`
	Paragraphs []paragraph `xml:"p"`
}

// paragraph is one lyric line
type paragraph struct {
	Begin string `xml:"begin,attr"`
	End   string `xml:"end,attr"`
	Spans []span `xml:"span"`
	Inner string `xml:",innerxml"`
}

// span is a timed word. Background vocals nest spans inside an x-bg span.
type span struct {
	Begin  string `xml:"begin,attr"`
	End    string `xml:"end,attr"`
	Role   string `xml:"role,attr"`
	Text   string `xml:",chardata"`
	Nested []span `xml:"span"`
}

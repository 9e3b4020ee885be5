package transcript

// DefaultLexicon is the built-in set of romanized Western Armenian terms the
// correction pipeline recognises out of the box. Callers may extend it with
// lesson-specific vocabulary before passing it to [Pipeline.Correct].
//
// Terms follow the Western Armenian transliteration conventions used in the
// lesson content (voiced initial consonants: "parev" not "barev").
var DefaultLexicon = []string{
	// Greetings and courtesy
	"parev",
	"pari louys",
	"pari irigun",
	"pari kisher",
	"shnorhagal em",
	"shnorhagalutyun",
	"khntrem",
	"neroghutyun",
	"tsdesutyun",
	"parov yegar",

	// Conversational basics
	"inchbes es",
	"lav em",
	"shad lav",
	"ayo",
	"voch",
	"yes",
	"tun",
	"inch",
	"ur",
	"yerp",

	// Family
	"mayrig",
	"hayrig",
	"yeghpayr",
	"kuyr",
	"medz mayrig",
	"medz hayrig",
	"entanik",

	// Food and culture
	"lahmajun",
	"choreg",
	"kebab",
	"tan",
	"sourj",
	"anush",
	"pari akhorjag",

	// Language and learning
	"hayeren",
	"angleren",
	"ge sorvim",
	"ge khosim",
	"ge haskenam",
	"chem haskenar",
	"noren eseq",
}

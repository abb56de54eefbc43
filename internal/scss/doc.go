// Package scss compiles the subset of SCSS used by the build presets into
// plain CSS.
//
// Supported: nested rules with & parent references and comma selector lists,
// $variables with block scope and the !default and !global flags, #{}
// interpolation, @import of partials, @mixin / @include with positional,
// keyword and default arguments and @content, @media and @supports nested
// inside rules, other block at-rules (@font-face, @keyframes, @page) and
// both comment styles. Control flow (@if, @each, @for), @function, @extend,
// @use and arithmetic are rejected with an error naming the construct.
//
// Plain CSS is valid input, so the same parser backs the autoprefix step.
package scss
